// Package commands implements the threadline CLI subcommands.
package commands

import (
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/config"
	"github.com/threadline/threadline/db"
	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/queue"
)

// loadConfig honors the global --config flag, falling back to the standard
// search path (threadline.toml up the tree, then THREADLINE_* env vars).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openDatabase opens the configured SQLite database and applies pending
// migrations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	conn, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(conn, logger.Logger); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return conn, nil
}

// storeEnqueuer inserts jobs directly through the store. The one-shot CLI
// commands use it so enqueueing never spins up a polling loop inside a
// process that is about to exit; the running worker picks the rows up.
type storeEnqueuer struct {
	store *queue.Store
}

func (s *storeEnqueuer) AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*queue.Job, error) {
	raw, err := queue.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	job, err := queue.NewJobAt(jobType, raw, scheduledFor)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}
