package store

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Dequeue reserves the ready job with the lowest (priority, id) in queue.
// Before choosing, delayed jobs whose time has come are promoted and expired
// reservations are recovered, both for this queue only. Returns nil, nil
// when nothing is ready.
func (s *Store) Dequeue(ctx context.Context, queue string, now time.Time) (*Job, error) {
	if err := requireNow(now); err != nil {
		s.failed(OpDequeue, err)
		return nil, err
	}
	if err := s.cfg.ValidateQueue(queue); err != nil {
		s.failed(OpDequeue, err)
		return nil, err
	}

	res := s.apply(ctx, OpDequeue, DequeueOp{Queue: queue, NowMs: now.UnixMilli()},
		attribute.String("queue", queue),
	)
	dr, err := resultAs[*DequeueResult](OpDequeue, res)
	if err != nil {
		return nil, err
	}
	if dr.Promoted > 0 || dr.Recovered > 0 {
		slog.Debug("queue maintenance", "queue", queue, "promoted", dr.Promoted, "recovered", dr.Recovered)
		s.observer.Maintenance(queue, dr.Promoted, dr.Recovered)
	}
	return dr.Job, nil
}
