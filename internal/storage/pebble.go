package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/user/sqeleton/internal/kv"
)

// Pebble is a Backend on a Pebble LSM. Each Update is one indexed batch so
// reads inside the transaction observe its own pending writes.
type Pebble struct {
	db     *pebble.DB
	noSync bool
}

// OpenPebble opens or creates a Pebble database in dir.
func OpenPebble(dir string, noSync bool) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		MemTableSize:          16 << 20, // 16MB
		L0CompactionThreshold: 8,
		MaxConcurrentCompactions: func() int {
			return 2
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Pebble{db: db, noSync: noSync}, nil
}

// OpenPebbleInMemory opens a Pebble database on an in-memory filesystem.
func OpenPebbleInMemory() (*Pebble, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open pebble in memory: %w", err)
	}
	return &Pebble{db: db, noSync: true}, nil
}

func (p *Pebble) Name() string { return "pebble" }

func (p *Pebble) syncOpt() *pebble.WriteOptions {
	if p.noSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func (p *Pebble) Update(_ context.Context, fn func(Tx) error) error {
	batch := p.db.NewIndexedBatch()
	defer func() { _ = batch.Close() }()
	if err := fn(&pebbleTx{r: batch, w: batch}); err != nil {
		return err
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(p.syncOpt()); err != nil {
		return fmt.Errorf("commit pebble batch: %w", err)
	}
	return nil
}

func (p *Pebble) View(_ context.Context, fn func(Tx) error) error {
	snap := p.db.NewSnapshot()
	defer func() { _ = snap.Close() }()
	return fn(&pebbleTx{r: snap})
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleTx struct {
	r pebbleReader
	w *pebble.Batch // nil for read-only views
}

func (t *pebbleTx) Get(key []byte) ([]byte, error) {
	v, closer, err := t.r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return append([]byte(nil), v...), nil
}

func (t *pebbleTx) Set(key, val []byte) error {
	if t.w == nil {
		return errReadOnly
	}
	return t.w.Set(key, val, nil)
}

func (t *pebbleTx) Delete(key []byte) error {
	if t.w == nil {
		return errReadOnly
	}
	return t.w.Delete(key, nil)
}

func (t *pebbleTx) Scan(prefix []byte, fn func(key, val []byte) (bool, error)) error {
	iter, err := t.r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: kv.PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()
	for iter.First(); iter.Valid(); iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		more, err := fn(k, v)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}
