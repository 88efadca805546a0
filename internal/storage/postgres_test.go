package storage_test

import (
	"testing"

	internal_storage "github.com/ignatij/ingestctl/internal/storage"
	"github.com/ignatij/ingestctl/internal/testutil"
	"github.com/ignatij/ingestctl/pkg/storage"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	runStoreSuite(t, func(t *testing.T) storage.Store {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		require.NoError(t, err)
		t.Cleanup(func() {
			testDB.Truncate(t)
			store.Close()
		})
		return store
	})
}
