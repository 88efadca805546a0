package storage_test

import (
	"path/filepath"
	"testing"

	internal_storage "github.com/ignatij/ingestctl/internal/storage"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) storage.Store {
		store, err := internal_storage.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "state.db")
		store, err := internal_storage.NewSQLiteStore(path)
		require.NoError(t, err)
		require.NoError(t, store.Set("authToken", "abc"))
		require.NoError(t, store.Close())

		reopened, err := internal_storage.NewSQLiteStore(path)
		require.NoError(t, err)
		defer reopened.Close()
		v, err := reopened.Get("authToken")
		assert.NoError(t, err)
		assert.Equal(t, "abc", v)
	})
}

func TestInitStore(t *testing.T) {
	store, err := internal_storage.InitStore(internal_storage.MemoryDriver, "")
	require.NoError(t, err)
	assert.NotNil(t, store)

	_, err = internal_storage.InitStore("redis", "")
	assert.Error(t, err)
}
