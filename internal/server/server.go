package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/user/sqeleton/internal/store"
)

// Server is the HTTP front end for a Store.
type Server struct {
	store      *store.Store
	metrics    *Metrics
	registry   *prometheus.Registry
	httpServer *http.Server
	router     chi.Router
	handler    http.Handler
}

// New creates a Server for s. It installs a metrics observer on s and
// registers its collectors with a fresh registry served at /metrics.
func New(s *store.Store, bindAddr string) *Server {
	reg := prometheus.NewRegistry()
	srv := &Server{
		store:    s,
		registry: reg,
		metrics:  NewMetrics(reg, s),
	}
	s.SetObserver(srv.metrics)
	srv.router = srv.buildRouter()
	srv.handler = h2c.NewHandler(srv.router, &http2.Server{})
	srv.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(structuredLogger)
	r.Use(s.metrics.httpMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queues", s.handleListQueues)
		r.Post("/queues/{queue}/jobs", s.handleEnqueue)
		r.Post("/queues/{queue}/reserve", s.handleReserve)
		r.Post("/queues/{queue}/kick", s.handleKick)
		r.Get("/queues/{queue}/stats", s.handleStats)

		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
		r.Post("/jobs/{id}/release", s.handleRelease)
		r.Post("/jobs/{id}/bury", s.handleBury)

		r.Post("/wipe", s.handleWipe)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JSON response helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeStoreError maps a classified store error onto an HTTP status.
func writeStoreError(w http.ResponseWriter, err error) {
	code := store.CodeOf(err)
	switch code {
	case store.ErrorCodeInvalidArgument:
		writeError(w, http.StatusBadRequest, err.Error(), string(code))
	case store.ErrorCodeInvalidState:
		writeError(w, http.StatusConflict, err.Error(), string(code))
	case store.ErrorCodeNotFound:
		writeError(w, http.StatusNotFound, err.Error(), string(code))
	case store.ErrorCodeTransportUnavailable:
		writeError(w, http.StatusServiceUnavailable, err.Error(), string(code))
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// decodeJSON reads an optional JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Middleware

func structuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"proto", r.Proto,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
