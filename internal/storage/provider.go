// Package storage persists the board document and sync metadata in a small
// key-value store, either as files on disk or rows in SQLite.
package storage

// Keys under which the engine stores its documents.
const (
	StateKey = "taboard.state.v1"
	MetaKey  = "taboard.drive.meta.v1"
)

// Provider is a minimal key-value store. Get on a missing key returns an
// error wrapping apperr.ErrNotFound; Delete on a missing key is a no-op.
type Provider interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
