package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/queue"
)

// JobsCmd lists recent jobs.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent jobs",
	Long: `List recent jobs, newest first.

Examples:
  threadline jobs                      # 20 most recent jobs
  threadline jobs --status failed      # Recent failures
  threadline jobs --limit 100`,
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

		limit, _ := cmd.Flags().GetInt("limit")
		statusFlag, _ := cmd.Flags().GetString("status")

		var status *queue.JobStatus
		if statusFlag != "" {
			if !queue.IsValidStatus(statusFlag) {
				return errors.Newf("invalid status %q (want pending, processing, completed, or failed)", statusFlag)
			}
			s := queue.JobStatus(statusFlag)
			status = &s
		}

		store := queue.NewStore(database)
		jobs, err := store.ListJobs(status, limit)
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-36s  %-32s  %-10s  %-8s  %s\n", "ID", "TYPE", "STATUS", "ATTEMPTS", "UPDATED")
		for _, job := range jobs {
			fmt.Printf("%-36s  %-32s  %-10s  %d/%d      %s\n",
				job.ID,
				job.Type,
				job.Status,
				job.Attempts,
				job.MaxAttempts,
				job.UpdatedAt.Format(time.RFC3339),
			)
			if job.LastError != "" {
				fmt.Printf("    last error: %s\n", job.LastError)
			}
		}

		return nil
	},
}

func init() {
	JobsCmd.Flags().String("status", "", "Filter by status (pending, processing, completed, failed)")
	JobsCmd.Flags().Int("limit", 20, "Maximum number of jobs to list")
}
