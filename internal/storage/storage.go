// Package storage provides ordered key-value backends with atomic
// read-write transactions. The engine keeps its job store and indexes in
// one Backend and applies every operation inside a single Update.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

// ErrNotFound is returned by Tx.Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

var errReadOnly = errors.New("storage: write in read-only transaction")

// Tx is a transaction over an ordered keyspace. Values returned by Get and
// passed to Scan callbacks are owned by the caller.
type Tx interface {
	Get(key []byte) ([]byte, error)
	Set(key, val []byte) error
	Delete(key []byte) error
	// Scan visits keys with the given prefix in ascending byte order until
	// fn returns false or an error. fn must not write to the transaction.
	Scan(prefix []byte, fn func(key, val []byte) (bool, error)) error
}

// Backend runs transactions. An error returned from an Update callback
// discards every write made inside it.
type Backend interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Name() string
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Kind     string // pebble, badger, or sqlite
	DataDir  string // empty = in-memory
	NoSync   bool
	InMemory bool
}

// Open opens the backend named by opts.Kind.
func Open(opts Options) (Backend, error) {
	inMem := opts.InMemory || opts.DataDir == ""
	switch opts.Kind {
	case "pebble", "":
		if inMem {
			return OpenPebbleInMemory()
		}
		b, err := OpenPebble(filepath.Join(opts.DataDir, "pebble"), opts.NoSync)
		if err != nil {
			return nil, fmt.Errorf("create pebble backend: %w", err)
		}
		return b, nil
	case "badger":
		if inMem {
			return OpenBadgerInMemory()
		}
		b, err := OpenBadger(filepath.Join(opts.DataDir, "badger"), opts.NoSync)
		if err != nil {
			return nil, fmt.Errorf("create badger backend: %w", err)
		}
		return b, nil
	case "sqlite":
		if inMem {
			return OpenSQLiteInMemory()
		}
		b, err := OpenSQLite(filepath.Join(opts.DataDir, "sqeleton.db"), opts.NoSync)
		if err != nil {
			return nil, fmt.Errorf("create sqlite backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q (expected pebble, badger, or sqlite)", opts.Kind)
	}
}

// Kinds lists the supported backend names.
func Kinds() []string {
	return []string{"pebble", "badger", "sqlite"}
}
