package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/sqeleton/internal/config"
	"github.com/user/sqeleton/internal/engine"
	"github.com/user/sqeleton/internal/observability"
	"github.com/user/sqeleton/internal/redisexec"
	"github.com/user/sqeleton/internal/server"
	"github.com/user/sqeleton/internal/storage"
	"github.com/user/sqeleton/internal/store"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sqeleton",
	Short:         "sqeleton: an atomic priority job queue",
	Long:          "A job queue with delayed, ready, reserved and buried states, served over HTTP from an embedded store or a Redis script.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		setupLogging(cfg.LogLevel)
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the sqeleton server",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (yaml, toml or json)")
	pf.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	f := serverCmd.Flags()
	f.String("bind", d.Bind, "HTTP server bind address")
	f.String("backend", d.Backend, "Storage backend: pebble, badger or sqlite")
	f.String("data-dir", d.DataDir, "Directory for backend files")
	f.Bool("no-sync", d.NoSync, "Skip fsync on commit")
	f.Bool("in-memory", d.InMemory, "Keep all data in memory")
	f.Duration("shutdown-timeout", d.ShutdownTimeout, "Graceful HTTP shutdown timeout")
	f.String("redis-addr", d.Redis.Addr, "Run operations as a Redis script on this server instead of the embedded store")
	f.String("redis-password", d.Redis.Password, "Redis password")
	f.Int("redis-db", d.Redis.DB, "Redis database number")
	f.String("redis-prefix", d.Redis.Prefix, "Key prefix for Redis data")
	f.Bool("otel-enabled", d.OTel.Enabled, "Enable OpenTelemetry tracing")
	f.String("otel-endpoint", d.OTel.Endpoint, "OTLP HTTP endpoint (host:port); if empty uses stdout exporter")
	f.Float64("otel-sample", d.OTel.Sample, "Trace sample ratio")
	f.Int64("store-min-priority", d.Store.MinPriority, "Lowest accepted priority")
	f.Int64("store-max-priority", d.Store.MaxPriority, "Highest accepted priority")
	f.Duration("store-max-ttr", d.Store.MaxTTR, "Longest accepted ttr")
	f.Duration("store-max-delay", d.Store.MaxDelay, "Longest accepted delay")
	f.Int("store-max-queue-name-len", d.Store.MaxQueueNameLen, "Longest accepted queue name in bytes")
	f.Int("store-max-payload-size", d.Store.MaxPayloadSize, "Largest accepted payload in bytes (0 = unlimited)")

	rootCmd.AddCommand(serverCmd)
}

func setupLogging(logLevel string) {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// openApplier returns the executor selected by cfg and a function that
// releases it.
func openApplier(ctx context.Context, cfg *config.Config) (store.Applier, func() error, error) {
	bounds := cfg.StoreBounds()
	if cfg.Redis.Addr != "" {
		rdb, err := redisexec.Dial(ctx, redisexec.DialOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		x := redisexec.New(rdb, cfg.Redis.Prefix, bounds)
		slog.Info("using redis executor", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix, "script", x.ScriptSHA())
		return x, rdb.Close, nil
	}

	backend, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, nil, err
	}
	e := engine.New(backend, bounds)
	slog.Info("engine opened", "backend", e.BackendName(), "data_dir", cfg.DataDir, "in_memory", cfg.InMemory)
	return e, e.Close, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	shutdownTracer, err := observability.InitTracer(observability.TracingConfig{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: "sqeleton",
		Endpoint:    cfg.OTel.Endpoint,
		SampleRatio: cfg.OTel.Sample,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	applier, closeApplier, err := openApplier(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		slog.Info("stopping store")
		if err := closeApplier(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}()

	s := store.NewStore(applier, cfg.StoreBounds())
	srv := server.New(s, cfg.Bind)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("sqeleton server ready", "bind", cfg.Bind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	slog.Info("sqeleton server stopped")
	return nil
}
