package storage

import (
	"fmt"

	"github.com/ignatij/ingestctl/pkg/storage"
)

const (
	PostgresDriver = "postgres"
	SQLiteDriver   = "sqlite"
	MemoryDriver   = "memory"
)

func InitStore(driver, dsn string) (storage.Store, error) {
	switch driver {
	case PostgresDriver:
		store, err := NewPostgresStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case SQLiteDriver, "sqlite3", "":
		store, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case MemoryDriver:
		return storage.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
