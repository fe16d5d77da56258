// Package config loads Threadline worker configuration with viper:
// defaults, an optional threadline.toml, and THREADLINE_* environment
// variables, in increasing precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/queue"
)

// Config is the full worker configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// WorkerConfig tunes the job queue polling loop.
type WorkerConfig struct {
	BatchSize           int `mapstructure:"batch_size"`            // Jobs fetched and executed per poll cycle
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // Sleep between empty polls
	ErrorBackoffSeconds int `mapstructure:"error_backoff_seconds"` // Sleep after a failed fetch
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds"` // Delay before a retryable attempt re-enters the queue
	JobTimeoutSeconds   int `mapstructure:"job_timeout_seconds"`   // Per-job execution timeout
	CleanupAgeDays      int `mapstructure:"cleanup_age_days"`      // Retention for terminal job rows
}

// QueueConfig converts the worker section into queue loop tuning.
func (w WorkerConfig) QueueConfig() queue.Config {
	return queue.Config{
		BatchSize:    w.BatchSize,
		IdleInterval: time.Duration(w.PollIntervalSeconds) * time.Second,
		ErrorBackoff: time.Duration(w.ErrorBackoffSeconds) * time.Second,
		RetryBackoff: time.Duration(w.RetryBackoffSeconds) * time.Second,
		JobTimeout:   time.Duration(w.JobTimeoutSeconds) * time.Second,
	}
}

// ConfigFileName is the project-local config file viper looks for.
const ConfigFileName = "threadline.toml"

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the configuration: defaults, then threadline.toml (found by
// walking up from the working directory), then THREADLINE_* environment
// variables. The result is cached for the process lifetime.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file, bypassing the
// search path and the cache.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "threadline.db")

	v.SetDefault("worker.batch_size", 5)
	v.SetDefault("worker.poll_interval_seconds", 5)
	v.SetDefault("worker.error_backoff_seconds", 10)
	v.SetDefault("worker.retry_backoff_seconds", 30)
	v.SetDefault("worker.job_timeout_seconds", 30)
	v.SetDefault("worker.cleanup_age_days", 30)
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("THREADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// A malformed file falls back to defaults; Load still succeeds.
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// findProjectConfig walks up from the working directory looking for
// threadline.toml. Returns "" when none is found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
