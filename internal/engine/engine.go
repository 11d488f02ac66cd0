// Package engine is the local Applier: it executes every queue operation
// as one transaction over an ordered key-value backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/sqeleton/internal/kv"
	"github.com/user/sqeleton/internal/storage"
	"github.com/user/sqeleton/internal/store"
)

// present is the value stored under index and registry keys.
var present = []byte{1}

// Engine owns the job store and all four indexes. Mutating operations run
// one at a time under mu, each inside a single backend Update, so a failed
// operation commits nothing.
type Engine struct {
	mu      sync.Mutex
	backend storage.Backend
	cfg     store.Config
}

// New creates an Engine over backend. The engine does not take ownership of
// the backend until Close is called.
func New(backend storage.Backend, cfg store.Config) *Engine {
	slog.Debug("engine opened", "backend", backend.Name())
	return &Engine{backend: backend, cfg: cfg}
}

// Close closes the underlying backend.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Close()
}

// BackendName returns the name of the storage backend.
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

// Apply implements store.Applier.
func (e *Engine) Apply(ctx context.Context, opType store.OpType, data any) *store.OpResult {
	if !opType.Mutating() {
		var out any
		err := e.backend.View(ctx, func(tx storage.Tx) error {
			var err error
			out, err = e.applyRead(tx, opType, data)
			return err
		})
		return &store.OpResult{Data: out, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var out any
	err := e.backend.Update(ctx, func(tx storage.Tx) error {
		var err error
		out, err = e.applyByType(tx, opType, data)
		return err
	})
	if err != nil {
		return &store.OpResult{Err: err}
	}
	return &store.OpResult{Data: out}
}

func (e *Engine) applyByType(tx storage.Tx, opType store.OpType, data any) (any, error) {
	switch opType {
	case store.OpEnqueue:
		op, err := opData[store.EnqueueOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyEnqueue(tx, op)
	case store.OpDequeue:
		op, err := opData[store.DequeueOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyDequeue(tx, op)
	case store.OpDelete:
		op, err := opData[store.DeleteOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyDelete(tx, op)
	case store.OpRelease:
		op, err := opData[store.ReleaseOp](data)
		if err != nil {
			return nil, err
		}
		return nil, e.applyRelease(tx, op)
	case store.OpBury:
		op, err := opData[store.BuryOp](data)
		if err != nil {
			return nil, err
		}
		return nil, e.applyBury(tx, op)
	case store.OpKick:
		op, err := opData[store.KickOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyKick(tx, op)
	case store.OpWipe:
		op, err := opData[store.WipeOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyWipe(tx, op)
	default:
		return nil, fmt.Errorf("unknown op type: %d", opType)
	}
}

func (e *Engine) applyRead(tx storage.Tx, opType store.OpType, data any) (any, error) {
	switch opType {
	case store.OpPeek:
		op, err := opData[store.PeekOp](data)
		if err != nil {
			return nil, err
		}
		return e.applyPeek(tx, op)
	case store.OpStats:
		op, err := opData[store.StatsOp](data)
		if err != nil {
			return nil, err
		}
		return queueStats(tx, op.Queue)
	case store.OpListQueues:
		return listQueues(tx)
	default:
		return nil, fmt.Errorf("unknown op type: %d", opType)
	}
}

// opData accepts an op struct by value or by pointer.
func opData[T any](data any) (T, error) {
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, store.NewInvalidArgument("unexpected op data %T", data)
}

// --- record helpers ---

func getJob(tx storage.Tx, id uint64) (*jobRecord, error) {
	val, err := tx.Get(kv.JobKey(id))
	if err != nil {
		return nil, err
	}
	rec, err := decodeJobRecord(val)
	if err != nil {
		return nil, fmt.Errorf("decode job %d: %w", id, err)
	}
	return rec, nil
}

// lookupJob resolves an opaque id. ok is false when no such job exists.
func lookupJob(tx storage.Tx, id string) (rec *jobRecord, ok bool, err error) {
	seq, valid := store.ParseJobID(id)
	if !valid {
		return nil, false, nil
	}
	rec, err = getJob(tx, seq)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read job %s: %w", id, err)
	}
	return rec, true, nil
}

// putJob writes the record and its index entry.
func putJob(tx storage.Tx, rec *jobRecord) error {
	data, err := encodeJobRecord(rec)
	if err != nil {
		return fmt.Errorf("encode job %d: %w", rec.ID, err)
	}
	if err := tx.Set(kv.JobKey(rec.ID), data); err != nil {
		return err
	}
	return tx.Set(rec.indexKey(), present)
}

// unindexJob removes the record's current index entry.
func unindexJob(tx storage.Tx, rec *jobRecord) error {
	return tx.Delete(rec.indexKey())
}

// nextSeq increments and returns the counter stored at key.
func nextSeq(tx storage.Tx, key string) (uint64, error) {
	var cur uint64
	val, err := tx.Get([]byte(key))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", key, err)
	case len(val) != 8:
		return 0, fmt.Errorf("bad sequence length for %s: %d", key, len(val))
	default:
		cur = kv.GetUint64BE(val)
	}
	cur++
	if err := tx.Set([]byte(key), kv.PutUint64BE(nil, cur)); err != nil {
		return 0, err
	}
	return cur, nil
}

// collectIndex returns the decoded entries under prefix, in key order,
// while keep returns true. limit > 0 caps the number of entries.
func collectIndex(tx storage.Tx, prefix []byte, keep func(kv.IndexEntry) bool, limit int) ([]kv.IndexEntry, error) {
	var out []kv.IndexEntry
	err := tx.Scan(prefix, func(k, _ []byte) (bool, error) {
		ent, ok := kv.DecodeIndexKey(prefix, k)
		if !ok {
			return true, nil
		}
		if !keep(ent) {
			return false, nil
		}
		out = append(out, ent)
		return limit <= 0 || len(out) < limit, nil
	})
	return out, err
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
