// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CONDUCTIO_SERVER_PORT.
const EnvPrefix = "CONDUCTIO"

// Storage providers for the optional artifact archive.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Output  OutputConfig  `mapstructure:"output"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                     int      `mapstructure:"port"`
	WriteTimeoutSeconds      int      `mapstructure:"write_timeout_seconds"`
	GenerationTimeoutSeconds int      `mapstructure:"generation_timeout_seconds"`
	Development              bool     `mapstructure:"development"`
	AllowedOrigins           []string `mapstructure:"allowed_origins"`
	// RateLimitRPS limits generation requests per client IP; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// EngineConfig locates and bounds the external generation engine.
type EngineConfig struct {
	Dir                   string `mapstructure:"dir"`
	Command               string `mapstructure:"command"`
	Script                string `mapstructure:"script"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	MaxOutputBytes        int    `mapstructure:"max_output_bytes"`
	ProbeTimeoutSeconds   int    `mapstructure:"probe_timeout_seconds"`
	ProbeMarker           string `mapstructure:"probe_marker"`
	CatalogTimeoutSeconds int    `mapstructure:"catalog_timeout_seconds"`
	MaxConcurrent         int    `mapstructure:"max_concurrent"`
	OutputPattern         string `mapstructure:"output_pattern"`
}

// OutputConfig points at the engine's package directory.
type OutputConfig struct {
	// Dir defaults to <engine.dir>/output.
	Dir string `mapstructure:"dir"`
}

// JobsConfig sizes the async worker pool.
type JobsConfig struct {
	Workers               int `mapstructure:"workers"`
	QueueDepth            int `mapstructure:"queue_depth"`
	EnqueueTimeoutSeconds int `mapstructure:"enqueue_timeout_seconds"`
}

// StorageConfig selects the optional archive for async results.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for job completion events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether completion events should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.write_timeout_seconds", 60)
	v.SetDefault("server.generation_timeout_seconds", 300)
	v.SetDefault("server.development", false)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("engine.dir", "../conductio-service")
	v.SetDefault("engine.command", "./venv/bin/python")
	v.SetDefault("engine.script", "main.py")
	v.SetDefault("engine.timeout_seconds", 240)
	v.SetDefault("engine.max_output_bytes", 1024*1024)
	v.SetDefault("engine.probe_timeout_seconds", 5)
	v.SetDefault("engine.probe_marker", "Python")
	v.SetDefault("engine.catalog_timeout_seconds", 10)
	v.SetDefault("engine.max_concurrent", 2)
	v.SetDefault("engine.output_pattern", "")
	v.SetDefault("output.dir", "")
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.enqueue_timeout_seconds", 5)
	v.SetDefault("storage.provider", StorageNone)
	v.SetDefault("storage.base_dir", "")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "generations")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"server.port":                       c.Server.Port,
		"server.write_timeout_seconds":      c.Server.WriteTimeoutSeconds,
		"server.generation_timeout_seconds": c.Server.GenerationTimeoutSeconds,
		"engine.timeout_seconds":            c.Engine.TimeoutSeconds,
		"engine.max_output_bytes":           c.Engine.MaxOutputBytes,
		"engine.probe_timeout_seconds":      c.Engine.ProbeTimeoutSeconds,
		"engine.catalog_timeout_seconds":    c.Engine.CatalogTimeoutSeconds,
		"engine.max_concurrent":             c.Engine.MaxConcurrent,
		"jobs.workers":                      c.Jobs.Workers,
		"jobs.queue_depth":                  c.Jobs.QueueDepth,
		"jobs.enqueue_timeout_seconds":      c.Jobs.EnqueueTimeoutSeconds,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, errors.New("server.rate_limit_rps must be >= 0"))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("server.rate_limit_burst must be > 0 when rate limiting is enabled"))
	}
	if strings.TrimSpace(c.Engine.Dir) == "" {
		errs = append(errs, errors.New("engine.dir is required"))
	}
	if strings.TrimSpace(c.Engine.Command) == "" {
		errs = append(errs, errors.New("engine.command is required"))
	}
	if c.Server.GenerationTimeoutSeconds < c.Engine.TimeoutSeconds {
		errs = append(errs, errors.New("server.generation_timeout_seconds must be >= engine.timeout_seconds"))
	}
	switch c.Storage.Provider {
	case StorageNone, StorageMemory, "":
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			errs = append(errs, errors.New("storage.base_dir is required for the local provider"))
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q must be one of none, memory, local, gcs", c.Storage.Provider))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic_name must be set together"))
	}
	return errors.Join(errs...)
}

// OutputDir returns the directory the engine writes packages to.
func (c Config) OutputDir() string {
	if c.Output.Dir != "" {
		return c.Output.Dir
	}
	return filepath.Join(c.Engine.Dir, "output")
}

// EngineTimeout bounds a single generation subprocess.
func (c Config) EngineTimeout() time.Duration {
	return seconds(c.Engine.TimeoutSeconds)
}

// ProbeTimeout bounds the engine availability probe.
func (c Config) ProbeTimeout() time.Duration {
	return seconds(c.Engine.ProbeTimeoutSeconds)
}

// CatalogTimeout bounds the instrument catalog lookup.
func (c Config) CatalogTimeout() time.Duration {
	return seconds(c.Engine.CatalogTimeoutSeconds)
}

// WriteTimeout is the default HTTP response deadline.
func (c Config) WriteTimeout() time.Duration {
	return seconds(c.Server.WriteTimeoutSeconds)
}

// GenerationTimeout is the extended deadline of the generation routes.
func (c Config) GenerationTimeout() time.Duration {
	return seconds(c.Server.GenerationTimeoutSeconds)
}

// EnqueueTimeout bounds how long the async route waits for queue space.
func (c Config) EnqueueTimeout() time.Duration {
	return seconds(c.Jobs.EnqueueTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
