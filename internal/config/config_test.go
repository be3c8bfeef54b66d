package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 3001, cfg.Server.Port)
	require.Equal(t, 60*time.Second, cfg.WriteTimeout())
	require.Equal(t, 5*time.Minute, cfg.GenerationTimeout())
	require.False(t, cfg.Server.Development)
	require.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	require.Zero(t, cfg.Server.RateLimitRPS)
	require.Equal(t, 5, cfg.Server.RateLimitBurst)

	require.Equal(t, "../conductio-service", cfg.Engine.Dir)
	require.Equal(t, "./venv/bin/python", cfg.Engine.Command)
	require.Equal(t, "main.py", cfg.Engine.Script)
	require.Equal(t, 4*time.Minute, cfg.EngineTimeout())
	require.Equal(t, 1<<20, cfg.Engine.MaxOutputBytes)
	require.Equal(t, 5*time.Second, cfg.ProbeTimeout())
	require.Equal(t, "Python", cfg.Engine.ProbeMarker)
	require.Equal(t, 10*time.Second, cfg.CatalogTimeout())
	require.Equal(t, 2, cfg.Engine.MaxConcurrent)
	require.Equal(t, filepath.Join("../conductio-service", "output"), cfg.OutputDir())

	require.Equal(t, 2, cfg.Jobs.Workers)
	require.Equal(t, 64, cfg.Jobs.QueueDepth)
	require.Equal(t, 5*time.Second, cfg.EnqueueTimeout())
	require.Equal(t, StorageNone, cfg.Storage.Provider)
	require.Equal(t, "generations", cfg.Storage.Prefix)
	require.False(t, cfg.PubSub.Enabled())
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 8080
  development: true
engine:
  dir: /srv/conductio-service
  command: /usr/bin/python3
  timeout_seconds: 120
  max_concurrent: 4
output:
  dir: /data/packages
jobs:
  workers: 3
storage:
  provider: local
  base_dir: /data/archive
pubsub:
  project_id: conductio-prod
  topic_name: generations
logging:
  development: true
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Server.Development)
	require.Equal(t, "/srv/conductio-service", cfg.Engine.Dir)
	require.Equal(t, 2*time.Minute, cfg.EngineTimeout())
	require.Equal(t, 4, cfg.Engine.MaxConcurrent)
	require.Equal(t, "/data/packages", cfg.OutputDir())
	require.Equal(t, 3, cfg.Jobs.Workers)
	require.Equal(t, StorageLocal, cfg.Storage.Provider)
	require.True(t, cfg.PubSub.Enabled())
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONDUCTIO_SERVER_PORT", "4000")
	t.Setenv("CONDUCTIO_ENGINE_DIR", "/opt/engine")
	t.Setenv("CONDUCTIO_JOBS_WORKERS", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Server.Port)
	require.Equal(t, "/opt/engine", cfg.Engine.Dir)
	require.Equal(t, "/opt/engine/output", cfg.OutputDir())
	require.Equal(t, 8, cfg.Jobs.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 3001, WriteTimeoutSeconds: 60, GenerationTimeoutSeconds: 300},
			Engine: EngineConfig{
				Dir: "../conductio-service", Command: "python", TimeoutSeconds: 240, MaxOutputBytes: 1024,
				ProbeTimeoutSeconds: 5, CatalogTimeoutSeconds: 10, MaxConcurrent: 1,
			},
			Jobs:    JobsConfig{Workers: 1, QueueDepth: 1, EnqueueTimeoutSeconds: 1},
			Storage: StorageConfig{Provider: StorageNone},
		}
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port must be > 0"},
		{"workers", func(c *Config) { c.Jobs.Workers = -1 }, "jobs.workers must be > 0"},
		{"engine dir", func(c *Config) { c.Engine.Dir = " " }, "engine.dir is required"},
		{"engine command", func(c *Config) { c.Engine.Command = "" }, "engine.command is required"},
		{"route deadline shorter than engine", func(c *Config) { c.Server.GenerationTimeoutSeconds = 60 }, "generation_timeout_seconds must be >="},
		{"local without dir", func(c *Config) { c.Storage.Provider = StorageLocal }, "storage.base_dir is required"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = StorageGCS }, "storage.gcs_bucket is required"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, `storage.provider "s3"`},
		{"negative rate", func(c *Config) { c.Server.RateLimitRPS = -1 }, "rate_limit_rps must be >= 0"},
		{"rate without burst", func(c *Config) { c.Server.RateLimitRPS = 2 }, "rate_limit_burst must be > 0"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "must be set together"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}
