package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/threadline/threadline/errors"
)

// defaultFile mirrors Config with toml tags for writing. viper reads
// mapstructure tags; go-toml writes these.
type defaultFile struct {
	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`
	Worker struct {
		BatchSize           int `toml:"batch_size"`
		PollIntervalSeconds int `toml:"poll_interval_seconds"`
		ErrorBackoffSeconds int `toml:"error_backoff_seconds"`
		RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
		JobTimeoutSeconds   int `toml:"job_timeout_seconds"`
		CleanupAgeDays      int `toml:"cleanup_age_days"`
	} `toml:"worker"`
}

// WriteDefault writes a config file populated with the defaults to the
// given path. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists: %s", path)
	}

	v := viper.New()
	SetDefaults(v)

	var f defaultFile
	f.Database.Path = v.GetString("database.path")
	f.Worker.BatchSize = v.GetInt("worker.batch_size")
	f.Worker.PollIntervalSeconds = v.GetInt("worker.poll_interval_seconds")
	f.Worker.ErrorBackoffSeconds = v.GetInt("worker.error_backoff_seconds")
	f.Worker.RetryBackoffSeconds = v.GetInt("worker.retry_backoff_seconds")
	f.Worker.JobTimeoutSeconds = v.GetInt("worker.job_timeout_seconds")
	f.Worker.CleanupAgeDays = v.GetInt("worker.cleanup_age_days")

	data, err := toml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to marshal default config")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create config directory %s", dir)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}

	return nil
}
