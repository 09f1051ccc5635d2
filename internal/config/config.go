// Package config provides unified configuration loading for the storyboard
// engine. Supports YAML files, environment variables, and programmatic
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the storyboard engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Raster        RasterConfig        `yaml:"raster"`
	Locator       LocatorConfig       `yaml:"locator"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// OracleConfig holds extraction-oracle settings.
type OracleConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// RasterConfig holds page rasterization settings.
type RasterConfig struct {
	MaxDimension      int           `yaml:"max_dimension"`       // archival raster bound
	ModelMaxDimension int           `yaml:"model_max_dimension"` // oracle-input bound
	JPEGQuality       int           `yaml:"jpeg_quality"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	RenderTimeout     time.Duration `yaml:"render_timeout"`
}

// LocatorConfig holds frame-locator settings.
type LocatorConfig struct {
	Strategy        string        `yaml:"strategy"` // subprocess or oracle
	DetectorPath    string        `yaml:"detector_path"`
	DetectorArgs    []string      `yaml:"detector_args"`
	InvokeTimeout   time.Duration `yaml:"invoke_timeout"`
	CropInset       int           `yaml:"crop_inset"`
	CropJPEGQuality int           `yaml:"crop_jpeg_quality"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	BatchSize          int `yaml:"batch_size"`
	ConcurrentBatches  int `yaml:"concurrent_batches"`
	GroupingThumbBound int `yaml:"grouping_thumb_bound"`
	GroupingMaxFrames  int `yaml:"grouping_max_frames"`
}

// CacheConfig holds the analysis result cache settings.
type CacheConfig struct {
	Driver        string        `yaml:"driver"` // memory or redis
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     300 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   300 * time.Second,
			MaxUploadBytes:   50 << 20,
			GracefulShutdown: 10 * time.Second,
		},
		Oracle: OracleConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "anthropic/claude-3.5-sonnet",
			RequestTimeout: 120 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 1 * time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Raster: RasterConfig{
			MaxDimension:      1200,
			ModelMaxDimension: 1400,
			JPEGQuality:       85,
			MaxRetries:        2,
			InitialBackoff:    500 * time.Millisecond,
			RenderTimeout:     90 * time.Second,
		},
		Locator: LocatorConfig{
			Strategy:        "subprocess",
			DetectorPath:    "scripts/frame_detector.py",
			DetectorArgs:    []string{"crop"},
			InvokeTimeout:   30 * time.Second,
			CropInset:       3,
			CropJPEGQuality: 85,
		},
		Pipeline: PipelineConfig{
			BatchSize:          4,
			ConcurrentBatches:  2,
			GroupingThumbBound: 300,
			GroupingMaxFrames:  24,
		},
		Cache: CacheConfig{
			Driver:        "memory",
			TTL:           15 * time.Minute,
			SweepInterval: 1 * time.Minute,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Locator.Strategy != "subprocess" && c.Locator.Strategy != "oracle" {
		return fmt.Errorf("invalid locator strategy: %s", c.Locator.Strategy)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}

	if c.Pipeline.ConcurrentBatches < 1 {
		return fmt.Errorf("concurrent_batches must be at least 1")
	}

	if c.Raster.JPEGQuality < 1 || c.Raster.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}

	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}

	if v := os.Getenv("ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}

	if v := os.Getenv("LOCATOR_STRATEGY"); v != "" {
		cfg.Locator.Strategy = v
	}

	if v := os.Getenv("FRAME_DETECTOR_PATH"); v != "" {
		cfg.Locator.DetectorPath = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = trimScheme(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func trimScheme(addr string) string {
	const scheme = "redis://"
	if len(addr) > len(scheme) && addr[:len(scheme)] == scheme {
		return addr[len(scheme):]
	}
	return addr
}
