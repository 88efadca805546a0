package storage_test

import (
	"testing"

	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against a fresh store per subtest.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("SetAndGet", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("selectedBucket", "raw-data"))
		v, err := store.Get("selectedBucket")
		assert.NoError(t, err)
		assert.Equal(t, "raw-data", v)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("jobName", "first"))
		require.NoError(t, store.Set("jobName", "second"))
		v, err := store.Get("jobName")
		assert.NoError(t, err)
		assert.Equal(t, "second", v)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get("nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMany", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set("rules", "executed"))
		require.NoError(t, store.Set("ner", "skipped"))
		require.NoError(t, store.Set("authToken", "tok"))
		require.NoError(t, store.Delete("rules", "ner", "missing"))

		keys, err := store.Keys()
		assert.NoError(t, err)
		assert.Equal(t, []string{"authToken"}, keys)
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		store := newStore(t)
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Set("app_data", "{}"))
		require.NoError(t, tx.Rollback())

		_, err = store.Get("app_data")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CommitPersistsWrites", func(t *testing.T) {
		store := newStore(t)
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.Set("app_data", `{"jobs":[]}`))
		require.NoError(t, tx.Commit())

		v, err := store.Get("app_data")
		assert.NoError(t, err)
		assert.Equal(t, `{"jobs":[]}`, v)
	})
}
