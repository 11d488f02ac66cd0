package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/sqeleton/internal/storage"
	"github.com/user/sqeleton/internal/store"
)

// EnvPrefix is prepended to every environment override, e.g. SQELETON_BACKEND.
const EnvPrefix = "SQELETON"

// Config holds the process level settings for the server and CLI.
type Config struct {
	Backend   string `mapstructure:"backend"`
	DataDir   string `mapstructure:"data_dir"`
	NoSync    bool   `mapstructure:"no_sync"`
	InMemory  bool   `mapstructure:"in_memory"`
	Bind      string `mapstructure:"bind"`
	LogLevel  string `mapstructure:"log_level"`
	ServerURL string `mapstructure:"server"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Redis RedisConfig `mapstructure:"redis"`
	OTel  OTelConfig  `mapstructure:"otel"`
	Store StoreConfig `mapstructure:"store"`
}

// RedisConfig selects the remote executor. An empty Addr means the local engine.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type OTelConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Endpoint string  `mapstructure:"endpoint"`
	Sample   float64 `mapstructure:"sample"`
}

// StoreConfig mirrors store.Config in a file friendly shape.
type StoreConfig struct {
	MinPriority     int64         `mapstructure:"min_priority"`
	MaxPriority     int64         `mapstructure:"max_priority"`
	MaxTTR          time.Duration `mapstructure:"max_ttr"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	MaxQueueNameLen int           `mapstructure:"max_queue_name_len"`
	MaxPayloadSize  int           `mapstructure:"max_payload_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	sc := store.DefaultConfig()
	return Config{
		Backend:         "pebble",
		DataDir:         "data",
		Bind:            ":8080",
		LogLevel:        "info",
		ServerURL:       "http://localhost:8080",
		ShutdownTimeout: 5 * time.Second,
		Redis: RedisConfig{
			Prefix: "sqeleton:",
		},
		OTel: OTelConfig{Sample: 1},
		Store: StoreConfig{
			MinPriority:     sc.MinPriority,
			MaxPriority:     sc.MaxPriority,
			MaxTTR:          sc.MaxTTR,
			MaxDelay:        sc.MaxDelay,
			MaxQueueNameLen: sc.MaxQueueNameLen,
			MaxPayloadSize:  sc.MaxPayloadSize,
		},
	}
}

// Load resolves configuration from defaults, an optional file, a .env file,
// SQELETON_* environment variables and command line flags, in increasing
// order of precedence. Flags are matched by name with dashes replaced by
// underscores and dots, so --data-dir sets data_dir and --redis-addr sets
// redis.addr.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
		slog.Debug("config file loaded", "path", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be caught by the engine itself.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		known := false
		for _, k := range storage.Kinds() {
			if k == c.Backend {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown backend %q (want one of %s)", c.Backend, strings.Join(storage.Kinds(), ", "))
		}
	}
	if c.Store.MinPriority > c.Store.MaxPriority {
		return fmt.Errorf("store.min_priority %d exceeds store.max_priority %d", c.Store.MinPriority, c.Store.MaxPriority)
	}
	if c.Store.MaxTTR <= 0 {
		return fmt.Errorf("store.max_ttr must be positive")
	}
	if c.Store.MaxDelay < 0 {
		return fmt.Errorf("store.max_delay must not be negative")
	}
	return nil
}

// StoreBounds converts the store section into engine bounds.
func (c *Config) StoreBounds() store.Config {
	return store.Config{
		MinPriority:     c.Store.MinPriority,
		MaxPriority:     c.Store.MaxPriority,
		MaxTTR:          c.Store.MaxTTR,
		MaxDelay:        c.Store.MaxDelay,
		MaxQueueNameLen: c.Store.MaxQueueNameLen,
		MaxPayloadSize:  c.Store.MaxPayloadSize,
	}
}

// StorageOptions converts the backend settings for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Kind:     c.Backend,
		DataDir:  c.DataDir,
		NoSync:   c.NoSync,
		InMemory: c.InMemory,
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("no_sync", d.NoSync)
	v.SetDefault("in_memory", d.InMemory)
	v.SetDefault("bind", d.Bind)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("server", d.ServerURL)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)

	v.SetDefault("otel.enabled", d.OTel.Enabled)
	v.SetDefault("otel.endpoint", d.OTel.Endpoint)
	v.SetDefault("otel.sample", d.OTel.Sample)

	v.SetDefault("store.min_priority", d.Store.MinPriority)
	v.SetDefault("store.max_priority", d.Store.MaxPriority)
	v.SetDefault("store.max_ttr", d.Store.MaxTTR)
	v.SetDefault("store.max_delay", d.Store.MaxDelay)
	v.SetDefault("store.max_queue_name_len", d.Store.MaxQueueNameLen)
	v.SetDefault("store.max_payload_size", d.Store.MaxPayloadSize)
}

// bindFlags binds every flag whose name maps onto a key with a default.
// Section flags use their section name as the first dash separated word.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := flagKey(f.Name)
		if !v.IsSet(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func flagKey(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	for _, section := range []string{"redis", "otel", "store"} {
		if strings.HasPrefix(name, section+"_") {
			return section + "." + strings.TrimPrefix(name, section+"_")
		}
	}
	return name
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
