// Package config loads settings for the clustercache commands: a YAML file
// first, then CLUSTERCACHE_* environment variables on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/clustercache/cache"
	"github.com/IvanBrykalov/clustercache/policy"
	"github.com/IvanBrykalov/clustercache/remote"
)

// Config is the full configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig points at the cluster API. An empty BaseURL makes the commands
// serve the synthetic in-process API instead.
type APIConfig struct {
	BaseURL  string        `yaml:"base_url"  env:"CLUSTERCACHE_API_BASE_URL"`
	Timeout  time.Duration `yaml:"timeout"   env:"CLUSTERCACHE_API_TIMEOUT"`
	MaxTries uint          `yaml:"max_tries" env:"CLUSTERCACHE_API_MAX_TRIES"`
	Encoding string        `yaml:"encoding"  env:"CLUSTERCACHE_API_ENCODING"`
}

// CacheConfig mirrors cache.Options.
type CacheConfig struct {
	Retention       string `yaml:"retention"        env:"CLUSTERCACHE_RETENTION"`
	AnnotationSlots int    `yaml:"annotation_slots" env:"CLUSTERCACHE_ANNOTATION_SLOTS"`
	ExpressionSlots int    `yaml:"expression_slots" env:"CLUSTERCACHE_EXPRESSION_SLOTS"`
	Shards          int    `yaml:"shards"           env:"CLUSTERCACHE_SHARDS"`
}

// MetricsConfig controls the HTTP endpoints of the commands.
type MetricsConfig struct {
	Addr      string `yaml:"addr"       env:"CLUSTERCACHE_METRICS_ADDR"`
	Namespace string `yaml:"namespace"  env:"CLUSTERCACHE_METRICS_NAMESPACE"`
	PprofAddr string `yaml:"pprof_addr" env:"CLUSTERCACHE_PPROF_ADDR"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level   string `yaml:"level"   env:"CLUSTERCACHE_LOG_LEVEL"`
	Console bool   `yaml:"console" env:"CLUSTERCACHE_LOG_CONSOLE"`
}

// Load reads configuration from a YAML file and applies environment
// overrides. A missing file (or an empty path) yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			applyDefaults(cfg)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout:  30 * time.Second,
			MaxTries: 3,
		},
		Cache: CacheConfig{
			Retention:       string(policy.LRU),
			AnnotationSlots: 1,
			ExpressionSlots: 1,
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Namespace: "clustercache",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = defaults.API.Timeout
	}
	if cfg.API.MaxTries == 0 {
		cfg.API.MaxTries = defaults.API.MaxTries
	}
	if cfg.Cache.Retention == "" {
		cfg.Cache.Retention = defaults.Cache.Retention
	}
	if cfg.Cache.AnnotationSlots == 0 {
		cfg.Cache.AnnotationSlots = defaults.Cache.AnnotationSlots
	}
	if cfg.Cache.ExpressionSlots == 0 {
		cfg.Cache.ExpressionSlots = defaults.Cache.ExpressionSlots
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = defaults.Metrics.Addr
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := policy.ParseKind(c.Cache.Retention); err != nil {
		return fmt.Errorf("config: cache.retention: %w", err)
	}
	if c.Cache.AnnotationSlots < 0 || c.Cache.ExpressionSlots < 0 {
		return errors.New("config: cache slots must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch c.API.Encoding {
	case "", "gzip", "zstd":
	default:
		return fmt.Errorf("config: api.encoding: unsupported %q", c.API.Encoding)
	}
	return nil
}

// Logger builds the zerolog logger described by Log.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if c.Log.Console {
		l = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Logger()
}

// CacheOptions converts the cache section. Fetcher and observability hooks
// are left for the caller.
func (c *Config) CacheOptions() cache.Options {
	kind, _ := policy.ParseKind(c.Cache.Retention)
	return cache.Options{
		Retention:       kind,
		AnnotationSlots: c.Cache.AnnotationSlots,
		ExpressionSlots: c.Cache.ExpressionSlots,
		Shards:          c.Cache.Shards,
	}
}

// RemoteOptions converts the api section.
func (c *Config) RemoteOptions() remote.Options {
	return remote.Options{
		Timeout:  c.API.Timeout,
		MaxTries: c.API.MaxTries,
	}
}
