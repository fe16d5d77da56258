package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/cmd/threadline/commands"
	"github.com/threadline/threadline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "threadline",
	Short: "Threadline background work system",
	Long: `Threadline background work system.

Runs the durable job queue, the recurring scheduler, and the event
fan-out for the Threadline support platform.

Available commands:
  worker  - Run the background worker (queue loop + scheduler)
  stats   - Show job counts and system metrics
  jobs    - List recent jobs
  enqueue - Insert an ad-hoc job
  trigger - Fire an application event
  config  - Manage configuration

Examples:
  threadline worker                                # Run the worker in foreground
  threadline stats                                 # Queue health at a glance
  threadline jobs --status failed                  # Inspect failures
  threadline enqueue search.index-message \
    --payload '{"messageId": 42}'                  # Ad-hoc job
  threadline trigger conversations/message.created \
    --payload '{"messageId": 42}'                  # Event fan-out`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to a threadline.toml config file")

	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.EnqueueCmd)
	rootCmd.AddCommand(commands.TriggerCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
