package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/user/sqeleton/internal/store"
)

const metricsNamespace = "sqeleton"

var requestDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics records store operations and HTTP traffic. It implements
// store.Observer.
type Metrics struct {
	ops       *prometheus.CounterVec
	opLatency *prometheus.HistogramVec
	promoted  *prometheus.CounterVec
	recovered *prometheus.CounterVec
	requests  *prometheus.CounterVec
	reqTime   *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

// NewMetrics registers operation, HTTP, queue depth and runtime collectors
// with reg. Queue depth gauges are read from s on every scrape.
func NewMetrics(reg prometheus.Registerer, s *store.Store) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ops_total",
			Help:      "Store operations by type and outcome.",
		}, []string{"op", "outcome"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "op_duration_seconds",
			Help:      "Time spent applying store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		promoted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "delayed_promoted_total",
			Help:      "Delayed jobs moved to ready during dequeue maintenance.",
		}, []string{"queue"}),
		recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "leases_recovered_total",
			Help:      "Expired reservations returned to their queue during dequeue maintenance.",
		}, []string{"queue"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "code"}),
		reqTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   requestDurationBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}
	reg.MustRegister(
		m.ops, m.opLatency, m.promoted, m.recovered,
		m.requests, m.reqTime, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if s != nil {
		reg.MustRegister(newQueueCollector(s))
	}
	return m
}

// OpCompleted implements store.Observer.
func (m *Metrics) OpCompleted(op store.OpType, elapsed time.Duration, err error) {
	m.ops.WithLabelValues(op.String(), outcome(err)).Inc()
	if elapsed > 0 {
		m.opLatency.WithLabelValues(op.String()).Observe(elapsed.Seconds())
	}
}

// Maintenance implements store.Observer.
func (m *Metrics) Maintenance(queue string, promoted, recovered int) {
	if promoted > 0 {
		m.promoted.WithLabelValues(queue).Add(float64(promoted))
	}
	if recovered > 0 {
		m.recovered.WithLabelValues(queue).Add(float64(recovered))
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := store.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func (m *Metrics) httpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.reqTime.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// queueCollector exports per-queue, per-state job counts.
type queueCollector struct {
	store *store.Store
	jobs  *prometheus.Desc
}

func newQueueCollector(s *store.Store) *queueCollector {
	return &queueCollector{
		store: s,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "queue_jobs"),
			"Jobs currently held per queue and state.",
			[]string{"queue", "state"}, nil,
		),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	queues, err := c.store.ListQueues(ctx)
	if err != nil {
		slog.Warn("queue metrics unavailable", "error", err)
		return
	}
	for _, q := range queues {
		for _, st := range store.States {
			ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(q.Count(st)), q.Queue, string(st))
		}
	}
}
