// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/hiap"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or environment overrides.
type Config struct {
	// Connections
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	RedisURL    string `json:"redis_url,omitempty"`    // Redis URL for cross-replica inventory locks

	// Server
	Port    int    `json:"port,omitempty"`
	LogMode string `json:"log_mode,omitempty"` // "dev" or "prod"

	// HIAP worker pool
	HiapWorkers         int    `json:"hiap_workers,omitempty"`
	HiapQueueSize       int    `json:"hiap_queue_size,omitempty"`
	HiapJobTimeout      string `json:"hiap_job_timeout,omitempty"` // Go duration, e.g. "5m"
	HiapBulkConcurrency int    `json:"hiap_bulk_concurrency,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	def := hiap.DefaultConfig()
	return Config{
		Port:                8080,
		LogMode:             "prod",
		HiapWorkers:         def.Workers,
		HiapQueueSize:       def.QueueSize,
		HiapJobTimeout:      def.JobTimeout.String(),
		HiapBulkConcurrency: def.BulkConcurrency,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides fields with any of DATABASE_URL, REDIS_URL, PORT, LOG_MODE,
// HIAP_WORKERS, HIAP_QUEUE_SIZE, HIAP_JOB_TIMEOUT and HIAP_BULK_CONCURRENCY that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := getenv("LOG_MODE"); v != "" {
		c.LogMode = v
	}
	if v := getenv("HIAP_JOB_TIMEOUT"); v != "" {
		c.HiapJobTimeout = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Port},
		{"HIAP_WORKERS", &c.HiapWorkers},
		{"HIAP_QUEUE_SIZE", &c.HiapQueueSize},
		{"HIAP_BULK_CONCURRENCY", &c.HiapBulkConcurrency},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: %s must be an integer: %w", e.key, err)
		}
		*e.dst = n
	}
	return nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.LogMode != "" && c.LogMode != "dev" && c.LogMode != "prod" {
		return fmt.Errorf("config error: 'log_mode' must be \"dev\" or \"prod\"")
	}
	if c.HiapWorkers < 0 {
		return fmt.Errorf("config error: 'hiap_workers' must be non-negative")
	}
	if c.HiapQueueSize < 0 {
		return fmt.Errorf("config error: 'hiap_queue_size' must be non-negative")
	}
	if c.HiapBulkConcurrency < 0 {
		return fmt.Errorf("config error: 'hiap_bulk_concurrency' must be non-negative")
	}
	if c.HiapJobTimeout != "" {
		d, err := time.ParseDuration(c.HiapJobTimeout)
		if err != nil {
			return fmt.Errorf("config error: invalid 'hiap_job_timeout': %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config error: 'hiap_job_timeout' must be positive")
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}
	if result.LogMode == "" {
		result.LogMode = defaults.LogMode
	}
	if result.HiapJobTimeout == "" {
		result.HiapJobTimeout = defaults.HiapJobTimeout
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.HiapWorkers == 0 {
		result.HiapWorkers = defaults.HiapWorkers
	}
	if result.HiapQueueSize == 0 {
		result.HiapQueueSize = defaults.HiapQueueSize
	}
	if result.HiapBulkConcurrency == 0 {
		result.HiapBulkConcurrency = defaults.HiapBulkConcurrency
	}

	return result
}

// Hiap returns the worker pool settings. Call Validate first; an unparsable timeout
// falls back to the manager's default.
func (c *Config) Hiap() hiap.Config {
	timeout, _ := time.ParseDuration(c.HiapJobTimeout)
	return hiap.Config{
		Workers:         c.HiapWorkers,
		QueueSize:       c.HiapQueueSize,
		JobTimeout:      timeout,
		BulkConcurrency: c.HiapBulkConcurrency,
	}
}

// Load reads the optional config file at path, applies environment overrides, fills
// defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}
