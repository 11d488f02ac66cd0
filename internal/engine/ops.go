package engine

import (
	"fmt"

	"github.com/user/sqeleton/internal/kv"
	"github.com/user/sqeleton/internal/storage"
	"github.com/user/sqeleton/internal/store"
)

// --- Enqueue ---

func (e *Engine) applyEnqueue(tx storage.Tx, op store.EnqueueOp) (string, error) {
	if err := e.cfg.ValidateEnqueue(op); err != nil {
		return "", err
	}
	seq, err := nextSeq(tx, kv.KeyJobSeq)
	if err != nil {
		return "", err
	}

	rec := &jobRecord{
		ID:          seq,
		Queue:       op.Queue,
		Payload:     op.Payload,
		Priority:    op.Priority,
		TTRMs:       op.TTRMs,
		CreatedAtMs: op.NowMs,
		ReadyAtMs:   op.NowMs + op.DelayMs,
		State:       store.StateReady,
	}
	if op.DelayMs > 0 {
		rec.State = store.StateDelayed
	}
	if err := putJob(tx, rec); err != nil {
		return "", fmt.Errorf("write job %d: %w", seq, err)
	}
	if err := tx.Set(kv.QueueNameKey(op.Queue), present); err != nil {
		return "", err
	}
	return store.FormatJobID(seq), nil
}

// --- Dequeue ---

func (e *Engine) applyDequeue(tx storage.Tx, op store.DequeueOp) (*store.DequeueResult, error) {
	if err := e.cfg.ValidateQueue(op.Queue); err != nil {
		return nil, err
	}
	if err := store.ValidateNowMs(op.NowMs); err != nil {
		return nil, err
	}
	res := &store.DequeueResult{}

	var err error
	res.Promoted, err = promoteDelayed(tx, op.Queue, op.NowMs)
	if err != nil {
		return nil, fmt.Errorf("promote delayed: %w", err)
	}
	res.Recovered, err = recoverExpired(tx, op.Queue, op.NowMs)
	if err != nil {
		return nil, fmt.Errorf("recover expired: %w", err)
	}

	first, err := collectIndex(tx, kv.ReadyPrefix(op.Queue), func(kv.IndexEntry) bool { return true }, 1)
	if err != nil {
		return nil, fmt.Errorf("scan ready: %w", err)
	}
	if len(first) == 0 {
		return res, nil
	}

	rec, err := getJob(tx, first[0].JobID)
	if err != nil {
		return nil, fmt.Errorf("read job %d: %w", first[0].JobID, err)
	}
	if err := unindexJob(tx, rec); err != nil {
		return nil, err
	}
	rec.State = store.StateReserved
	rec.ReserveDeadlineMs = op.NowMs + rec.TTRMs
	rec.ReserveCount++
	if err := putJob(tx, rec); err != nil {
		return nil, fmt.Errorf("reserve job %d: %w", rec.ID, err)
	}
	res.Job = rec.toJob()
	return res, nil
}

// promoteDelayed moves every delayed job of queue with ready_at <= now to
// the ready index.
func promoteDelayed(tx storage.Tx, queue string, nowMs int64) (int, error) {
	due, err := collectIndex(tx, kv.DelayedPrefix(queue), func(ent kv.IndexEntry) bool {
		return ent.SortInt64() <= nowMs // sorted: stop at the first future entry
	}, 0)
	if err != nil {
		return 0, err
	}
	for _, ent := range due {
		if err := moveToReady(tx, ent.JobID); err != nil {
			return 0, err
		}
	}
	return len(due), nil
}

// recoverExpired moves every reserved job of queue whose lease deadline is
// at or before now back to the ready index. reserve_count is unchanged.
func recoverExpired(tx storage.Tx, queue string, nowMs int64) (int, error) {
	expired, err := collectIndex(tx, kv.ReservedPrefix(queue), func(ent kv.IndexEntry) bool {
		return ent.SortInt64() <= nowMs
	}, 0)
	if err != nil {
		return 0, err
	}
	for _, ent := range expired {
		if err := moveToReady(tx, ent.JobID); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

func moveToReady(tx storage.Tx, id uint64) error {
	rec, err := getJob(tx, id)
	if err != nil {
		return fmt.Errorf("read job %d: %w", id, err)
	}
	if err := unindexJob(tx, rec); err != nil {
		return err
	}
	rec.State = store.StateReady
	rec.ReserveDeadlineMs = 0
	rec.BuryReason = ""
	rec.BurySeq = 0
	return putJob(tx, rec)
}

// --- Delete ---

func (e *Engine) applyDelete(tx storage.Tx, op store.DeleteOp) (int, error) {
	rec, ok, err := lookupJob(tx, op.JobID)
	if err != nil || !ok {
		return 0, err
	}
	if err := unindexJob(tx, rec); err != nil {
		return 0, err
	}
	if err := tx.Delete(kv.JobKey(rec.ID)); err != nil {
		return 0, err
	}
	return 1, nil
}

// --- Release ---

func (e *Engine) applyRelease(tx storage.Tx, op store.ReleaseOp) error {
	if err := e.cfg.ValidateRelease(op); err != nil {
		return err
	}
	rec, ok, err := lookupJob(tx, op.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return store.NewInvalidState("job %s not found", op.JobID)
	}
	if rec.State != store.StateReserved {
		return store.NewInvalidState("job %s is %s, not reserved", op.JobID, rec.State)
	}
	if rec.ReserveDeadlineMs <= op.NowMs {
		return store.NewInvalidState("job %s reservation expired", op.JobID)
	}

	if err := unindexJob(tx, rec); err != nil {
		return err
	}
	rec.Priority = op.Priority
	rec.ReadyAtMs = op.NowMs + op.DelayMs
	rec.ReserveDeadlineMs = 0
	rec.State = store.StateReady
	if op.DelayMs > 0 {
		rec.State = store.StateDelayed
	}
	return putJob(tx, rec)
}

// --- Bury ---

func (e *Engine) applyBury(tx storage.Tx, op store.BuryOp) error {
	rec, ok, err := lookupJob(tx, op.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return store.NewInvalidState("job %s not found", op.JobID)
	}
	if rec.State == store.StateBuried {
		return store.NewInvalidState("job %s is already buried", op.JobID)
	}

	seq, err := nextSeq(tx, kv.KeyBurySeq)
	if err != nil {
		return err
	}
	if err := unindexJob(tx, rec); err != nil {
		return err
	}
	rec.State = store.StateBuried
	rec.ReserveDeadlineMs = 0
	rec.BuryReason = op.Reason
	rec.BurySeq = seq
	return putJob(tx, rec)
}

// --- Kick ---

func (e *Engine) applyKick(tx storage.Tx, op store.KickOp) (int, error) {
	if err := e.cfg.ValidateKick(op); err != nil {
		return 0, err
	}
	if op.N == 0 {
		return 0, nil
	}
	buried, err := collectIndex(tx, kv.BuriedPrefix(op.Queue), func(kv.IndexEntry) bool { return true }, op.N)
	if err != nil {
		return 0, fmt.Errorf("scan buried: %w", err)
	}
	for _, ent := range buried {
		if err := moveToReady(tx, ent.JobID); err != nil {
			return 0, err
		}
	}
	return len(buried), nil
}

// --- Wipe ---

func (e *Engine) applyWipe(tx storage.Tx, op store.WipeOp) (int, error) {
	if err := e.cfg.ValidateWipe(op); err != nil {
		return 0, err
	}
	queues := []string{op.Scope.Queue()}
	if op.Scope.All() {
		var err error
		queues, err = queueNames(tx)
		if err != nil {
			return 0, err
		}
	}

	var removed int
	for _, q := range queues {
		n, err := wipeQueue(tx, q)
		if err != nil {
			return 0, fmt.Errorf("wipe queue %s: %w", q, err)
		}
		removed += n
	}
	return removed, nil
}

func wipeQueue(tx storage.Tx, queue string) (int, error) {
	var removed int
	for _, prefix := range kv.IndexPrefixes(queue) {
		ents, err := collectIndex(tx, prefix, func(kv.IndexEntry) bool { return true }, 0)
		if err != nil {
			return 0, err
		}
		for _, ent := range ents {
			if err := tx.Delete(indexKeyFor(prefix, ent)); err != nil {
				return 0, err
			}
			if err := tx.Delete(kv.JobKey(ent.JobID)); err != nil {
				return 0, err
			}
		}
		removed += len(ents)
	}
	if err := tx.Delete(kv.QueueNameKey(queue)); err != nil {
		return 0, err
	}
	return removed, nil
}

// indexKeyFor rebuilds an index key from its prefix and decoded suffix.
func indexKeyFor(prefix []byte, ent kv.IndexEntry) []byte {
	k := append([]byte(nil), prefix...)
	k = kv.PutUint64BE(k, ent.Sort)
	return kv.PutUint64BE(k, ent.JobID)
}

// --- Reads ---

func (e *Engine) applyPeek(tx storage.Tx, op store.PeekOp) (*store.Job, error) {
	rec, ok, err := lookupJob(tx, op.JobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.NewNotFound("job %s not found", op.JobID)
	}
	return rec.toJob(), nil
}

func queueStats(tx storage.Tx, queue string) (store.QueueStats, error) {
	st := store.QueueStats{Queue: queue}
	counts := []*int{&st.Ready, &st.Delayed, &st.Reserved, &st.Buried}
	for i, prefix := range kv.IndexPrefixes(queue) {
		err := tx.Scan(prefix, func(_, _ []byte) (bool, error) {
			*counts[i]++
			return true, nil
		})
		if err != nil {
			return st, fmt.Errorf("count %s: %w", queue, err)
		}
	}
	st.Total = st.Ready + st.Delayed + st.Reserved + st.Buried
	return st, nil
}

func listQueues(tx storage.Tx) ([]store.QueueStats, error) {
	names, err := queueNames(tx)
	if err != nil {
		return nil, err
	}
	out := make([]store.QueueStats, 0, len(names))
	for _, q := range names {
		st, err := queueStats(tx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func queueNames(tx storage.Tx) ([]string, error) {
	prefix := kv.QueueNamePrefix()
	var names []string
	err := tx.Scan(prefix, func(k, _ []byte) (bool, error) {
		names = append(names, string(k[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan queue names: %w", err)
	}
	return names, nil
}
