package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/config"
	"github.com/threadline/threadline/internal/support"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/queue"
	"github.com/threadline/threadline/work/schedule"
)

// WorkerCmd runs the background worker in the foreground.
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker",
	Long: `Run the background worker in foreground mode.

The worker:
- Polls the job queue and executes ready jobs through the handler registry
- Arms the recurring schedule catalog (maintenance sweeps, reports, digests)
- Reloads queue tuning when the config file changes
- Runs until interrupted (Ctrl+C); in-flight jobs finish before exit`,
	RunE: runWorker,
}

func init() {
	WorkerCmd.Flags().Int("batch-size", 0, "Override worker.batch_size from config")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if batch, _ := cmd.Flags().GetInt("batch-size"); batch > 0 {
		cfg.Worker.BatchSize = batch
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// Composition root: one registry, one queue, one scheduler, built
	// explicitly and torn down in reverse order.
	registry := queue.NewRegistry()
	q := queue.NewQueue(database, registry, cfg.Worker.QueueConfig(), logger.Logger)
	support.RegisterHandlers(registry, q.Store(), logger.Logger)

	scheduler := schedule.NewScheduler(q, logger.Logger)
	if err := support.RegisterRecurringJobs(scheduler); err != nil {
		return err
	}

	watcher := watchConfig(cmd, q)
	if watcher != nil {
		defer watcher.Stop()
	}

	q.Start()

	fmt.Printf("Threadline worker started\n")
	fmt.Printf("  Database:       %s\n", cfg.Database.Path)
	fmt.Printf("  Batch size:     %d\n", cfg.Worker.BatchSize)
	fmt.Printf("  Poll interval:  %ds\n", cfg.Worker.PollIntervalSeconds)
	fmt.Printf("  Job timeout:    %ds\n", cfg.Worker.JobTimeoutSeconds)
	fmt.Printf("  Handlers:       %d\n", len(registry.Names()))
	fmt.Printf("  Schedules:      %d\n", scheduler.Count())
	fmt.Printf("\nPress Ctrl+C to shut down\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down, letting in-flight jobs finish...\n")

	scheduler.CancelAll()
	q.Stop()

	fmt.Printf("Worker stopped\n")
	return nil
}

// watchConfig arms a config-file watcher that retunes the running queue.
// Returns nil when there is no config file to watch.
func watchConfig(cmd *cobra.Command, q *queue.Queue) *config.Watcher {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}

	watcher, err := config.NewWatcher(path)
	if err != nil {
		logger.Logger.Warnw("Config watching disabled", "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *config.Config) error {
		q.UpdateConfig(cfg.Worker.QueueConfig())
		logger.Logger.Infow("Worker tuning reloaded",
			"batch_size", cfg.Worker.BatchSize,
			"poll_interval", time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second,
		)
		return nil
	})
	watcher.Start()
	return watcher
}
