package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Delete removes a job in any state. It returns 1 if the job existed and 0
// otherwise; an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (int, error) {
	res := s.apply(ctx, OpDelete, DeleteOp{JobID: id}, attribute.String("job_id", id))
	return resultAs[int](OpDelete, res)
}

// Release returns a reserved job to its queue with a new priority. With a
// positive delay the job waits in the delay index until now+delay. The job
// must hold an unexpired reservation.
func (s *Store) Release(ctx context.Context, id string, priority int64, delay time.Duration, now time.Time) error {
	if err := requireNow(now); err != nil {
		s.failed(OpRelease, err)
		return err
	}
	if delay < 0 {
		err := NewInvalidArgument("delay must be >= 0")
		s.failed(OpRelease, err)
		return err
	}
	op := ReleaseOp{JobID: id, Priority: priority, DelayMs: durationMs(delay), NowMs: now.UnixMilli()}
	if err := s.cfg.ValidateRelease(op); err != nil {
		s.failed(OpRelease, err)
		return err
	}
	res := s.apply(ctx, OpRelease, op,
		attribute.String("job_id", id),
		attribute.Int64("priority", priority),
	)
	return res.Err
}

// Bury moves a ready, delayed or reserved job to its queue's buried set.
// reason is stored verbatim.
func (s *Store) Bury(ctx context.Context, id, reason string) error {
	res := s.apply(ctx, OpBury, BuryOp{JobID: id, Reason: reason}, attribute.String("job_id", id))
	return res.Err
}

// GetJob returns a job without changing it.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	res := s.apply(ctx, OpPeek, PeekOp{JobID: id}, attribute.String("job_id", id))
	return resultAs[*Job](OpPeek, res)
}
