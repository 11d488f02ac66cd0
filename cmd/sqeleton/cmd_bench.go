package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/user/sqeleton/pkg/client"
)

var (
	benchJobs      int
	benchProducers int
	benchConsumers int
	benchQueue     string
	benchPayload   string
	benchPriority  int64
	benchTTR       time.Duration
)

const maxConsecutiveErrors = 100

type benchResult struct {
	lats    []time.Duration
	elapsed time.Duration
	errors  int64
}

func (r benchResult) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(len(r.lats)) / r.elapsed.Seconds()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a producer/consumer load test against a server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchJobs <= 0 || benchProducers <= 0 || benchConsumers <= 0 {
			return fmt.Errorf("--jobs, --producers and --consumers must be positive")
		}
		queue := benchQueue
		if queue == "" {
			queue = "bench-" + uuid.NewString()[:8]
		}
		c := newClient()
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "queue=%s jobs=%d producers=%d consumers=%d\n", queue, benchJobs, benchProducers, benchConsumers)

		enq := runProducers(ctx, c, queue)
		report(out, "enqueue", enq)

		deq := runConsumers(ctx, c, queue)
		report(out, "dequeue+delete", deq)

		if got := len(deq.lats); got != len(enq.lats) {
			return fmt.Errorf("consumed %d jobs, enqueued %d", got, len(enq.lats))
		}
		return nil
	},
}

// runProducers mirrors a fleet of clients enqueueing benchJobs jobs
// between them.
func runProducers(ctx context.Context, c *client.Client, queue string) benchResult {
	var (
		next atomic.Int64
		errs atomic.Int64
		mu   sync.Mutex
		wg   sync.WaitGroup
		all  []time.Duration
	)
	payload := []byte(benchPayload)
	start := time.Now()
	for i := 0; i < benchProducers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lats []time.Duration
			for next.Add(1) <= int64(benchJobs) {
				t := time.Now()
				_, err := c.Enqueue(ctx, queue, payload, client.WithPriority(benchPriority), client.WithTTR(benchTTR))
				if err != nil {
					errs.Add(1)
					continue
				}
				lats = append(lats, time.Since(t))
			}
			mu.Lock()
			all = append(all, lats...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return benchResult{lats: all, elapsed: time.Since(start), errors: errs.Load()}
}

// runConsumers dequeues and deletes until every consumer sees an empty
// queue.
func runConsumers(ctx context.Context, c *client.Client, queue string) benchResult {
	var (
		errs atomic.Int64
		mu   sync.Mutex
		wg   sync.WaitGroup
		all  []time.Duration
	)
	start := time.Now()
	for i := 0; i < benchConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lats []time.Duration
			failures := 0
			for ctx.Err() == nil && failures < maxConsecutiveErrors {
				t := time.Now()
				job, err := c.Dequeue(ctx, queue)
				if err != nil {
					errs.Add(1)
					failures++
					continue
				}
				failures = 0
				if job == nil {
					break
				}
				if _, err := c.Delete(ctx, job.ID); err != nil {
					errs.Add(1)
					continue
				}
				lats = append(lats, time.Since(t))
			}
			mu.Lock()
			all = append(all, lats...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return benchResult{lats: all, elapsed: time.Since(start), errors: errs.Load()}
}

func report(out io.Writer, phase string, r benchResult) {
	sorted := slices.Clone(r.lats)
	slices.Sort(sorted)
	fmt.Fprintf(out, "%-15s %7d ops  %9.0f ops/s  p50=%s p90=%s p99=%s errors=%d\n",
		phase, len(sorted), r.opsPerSec(),
		percentile(sorted, 50).Round(time.Microsecond),
		percentile(sorted, 90).Round(time.Microsecond),
		percentile(sorted, 99).Round(time.Microsecond),
		r.errors,
	)
}

func init() {
	f := benchCmd.Flags()
	f.IntVar(&benchJobs, "jobs", 10000, "Total jobs to enqueue")
	f.IntVar(&benchProducers, "producers", 20, "Concurrent producers")
	f.IntVar(&benchConsumers, "consumers", 10, "Concurrent consumers")
	f.StringVar(&benchQueue, "queue", "", "Queue name (default: bench-<random>)")
	f.StringVar(&benchPayload, "payload", `{"name":"do-stuff"}`, "Job payload")
	f.Int64Var(&benchPriority, "priority", 10, "Job priority")
	f.DurationVar(&benchTTR, "ttr", 128*time.Second, "Job ttr")

	addClientFlags(benchCmd)
	rootCmd.AddCommand(benchCmd)
}
