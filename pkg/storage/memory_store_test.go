package storage_test

import (
	"testing"

	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Run("SetGetDelete", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set("selectedBucket", "raw-data"))

		v, err := store.Get("selectedBucket")
		assert.NoError(t, err)
		assert.Equal(t, "raw-data", v)

		require.NoError(t, store.Delete("selectedBucket", "neverSet"))
		_, err = store.Get("selectedBucket")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CommitAppliesStagedWrites", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Set("a", "1"))

		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Set("b", "2"))
		require.NoError(t, tx.Delete("a"))

		// not visible outside the transaction yet
		v, err := store.Get("a")
		assert.NoError(t, err)
		assert.Equal(t, "1", v)
		_, err = store.Get("b")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		keys, err := tx.Keys()
		assert.NoError(t, err)
		assert.Equal(t, []string{"b"}, keys)

		require.NoError(t, tx.Commit())
		keys, err = store.Keys()
		assert.NoError(t, err)
		assert.Equal(t, []string{"b"}, keys)
		assert.Error(t, tx.Commit())
	})

	t.Run("RollbackDiscards", func(t *testing.T) {
		store := storage.NewMemoryStore()
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Set("jobName", "x"))
		require.NoError(t, tx.Rollback())

		_, err = store.Get("jobName")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Error(t, tx.Set("jobName", "y"))
	})

	t.Run("CommitOutsideTransaction", func(t *testing.T) {
		store := storage.NewMemoryStore()
		assert.Error(t, store.Commit())
		assert.Error(t, store.Rollback())
	})
}
