package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Kick moves up to n buried jobs of queue, oldest-buried first, back to
// ready. It returns how many were moved.
func (s *Store) Kick(ctx context.Context, queue string, n int) (int, error) {
	op := KickOp{Queue: queue, N: n}
	if err := s.cfg.ValidateKick(op); err != nil {
		s.failed(OpKick, err)
		return 0, err
	}
	res := s.apply(ctx, OpKick, op,
		attribute.String("queue", queue),
		attribute.Int("n", n),
	)
	return resultAs[int](OpKick, res)
}

// Wipe removes every job in scope and returns how many were removed.
// Job ids keep increasing afterwards.
func (s *Store) Wipe(ctx context.Context, scope WipeScope) (int, error) {
	op := WipeOp{Scope: scope}
	if err := s.cfg.ValidateWipe(op); err != nil {
		s.failed(OpWipe, err)
		return 0, err
	}
	res := s.apply(ctx, OpWipe, op, attribute.String("scope", scope.String()))
	return resultAs[int](OpWipe, res)
}

// Stats returns per-state counts for one queue.
func (s *Store) Stats(ctx context.Context, queue string) (QueueStats, error) {
	if err := s.cfg.ValidateQueue(queue); err != nil {
		return QueueStats{}, err
	}
	res := s.apply(ctx, OpStats, StatsOp{Queue: queue}, attribute.String("queue", queue))
	return resultAs[QueueStats](OpStats, res)
}

// ListQueues returns stats for every known queue, sorted by name.
func (s *Store) ListQueues(ctx context.Context) ([]QueueStats, error) {
	res := s.apply(ctx, OpListQueues, ListQueuesOp{})
	return resultAs[[]QueueStats](OpListQueues, res)
}
