package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Pipeline.BatchSize)
	assert.Equal(t, 2, cfg.Pipeline.ConcurrentBatches)
	assert.Equal(t, 1200, cfg.Raster.MaxDimension)
	assert.Equal(t, 1400, cfg.Raster.ModelMaxDimension)
	assert.Equal(t, 2, cfg.Raster.MaxRetries)
	assert.Equal(t, "subprocess", cfg.Locator.Strategy)
	assert.Equal(t, 3, cfg.Locator.CropInset)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)

	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
oracle:
  model: google/gemini-2.5-pro
pipeline:
  batch_size: 2
locator:
  strategy: oracle
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "google/gemini-2.5-pro", cfg.Oracle.Model)
	assert.Equal(t, 2, cfg.Pipeline.BatchSize)
	assert.Equal(t, "oracle", cfg.Locator.Strategy)
	// Unset fields keep their defaults.
	assert.Equal(t, 2, cfg.Pipeline.ConcurrentBatches)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORACLE_API_KEY", "sk-or-test")
	t.Setenv("SERVER_PORT", "8123")
	t.Setenv("LOCATOR_STRATEGY", "oracle")
	t.Setenv("REDIS_URL", "redis://cache.internal:6380")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-or-test", cfg.Oracle.APIKey)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "oracle", cfg.Locator.Strategy)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache.internal:6380", cfg.Cache.Redis.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad locator strategy", func(c *Config) { c.Locator.Strategy = "magic" }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.ConcurrentBatches = 0 }},
		{"bad jpeg quality", func(c *Config) { c.Raster.JPEGQuality = 101 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
