package storage

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("key not found")

// Well-known keys shared between commands.
const (
	AuthTokenKey     = "authToken"
	UserKey          = "user"
	AppDataKey       = "app_data"
	WizardSessionKey = "wizard_session"
)

// Store defines the durable key-value operations for ingestctl.
// Writes are last-write-wins; there is no cross-process versioning.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete removes the keys; absent keys are ignored.
	Delete(keys ...string) error
	Keys() ([]string, error)

	// Transaction operations
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error
}
