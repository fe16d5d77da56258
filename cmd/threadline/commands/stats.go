package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/internal/support"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/queue"
)

// StatsCmd shows queue health.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts and system metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		registry := queue.NewRegistry()
		q := queue.NewQueue(database, registry, cfg.Worker.QueueConfig(), logger.Logger)
		support.RegisterHandlers(registry, q.Store(), logger.Logger)

		stats, err := q.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("Jobs\n")
		fmt.Printf("  Pending:     %d\n", stats.Pending)
		fmt.Printf("  Processing:  %d\n", stats.Processing)
		fmt.Printf("  Completed:   %d\n", stats.Completed)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		fmt.Printf("  Total:       %d\n", stats.Total)

		fmt.Printf("\nRegistry\n")
		fmt.Printf("  Job types:   %d\n", len(registry.Names()))
		fmt.Printf("  Events:      %d\n", len(support.Events()))

		metrics, err := q.SystemMetrics()
		if err != nil {
			return err
		}
		fmt.Printf("\nSystem\n")
		if metrics.MemoryTotalGB > 0 {
			fmt.Printf("  Memory:      %.1f / %.1f GB (%.0f%%)\n",
				metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent)
		}
		fmt.Printf("  Queued:      %d\n", metrics.QueuedJobs)
		fmt.Printf("  Running:     %d\n", metrics.RunningJobs)

		return nil
	},
}
