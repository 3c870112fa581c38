package storage

import (
	"errors"
	"fmt"
)

// Store backends accepted by NewStore.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	// ErrBackendUnavailable is returned for the sqlite backend in builds
	// without the sqlite tag.
	ErrBackendUnavailable = errors.New("store backend not compiled in")
)

// Closer is implemented by stores holding external resources.
type Closer interface {
	Close() error
}

// NewStore opens the nodenet store for kind; an empty kind means memory.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if sqlitePath == "" {
			return nil, errors.New("sqlite store needs a database path")
		}
		return newSQLiteStore(sqlitePath)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
}

// CloseIfSupported closes stores that implement Closer.
func CloseIfSupported(store Store) error {
	if c, ok := store.(Closer); ok {
		return c.Close()
	}
	return nil
}
