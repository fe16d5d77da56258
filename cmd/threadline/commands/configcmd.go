package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/config"
)

// ConfigCmd manages the configuration file.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("[database]\n")
		fmt.Printf("path = %q\n\n", cfg.Database.Path)
		fmt.Printf("[worker]\n")
		fmt.Printf("batch_size = %d\n", cfg.Worker.BatchSize)
		fmt.Printf("poll_interval_seconds = %d\n", cfg.Worker.PollIntervalSeconds)
		fmt.Printf("error_backoff_seconds = %d\n", cfg.Worker.ErrorBackoffSeconds)
		fmt.Printf("retry_backoff_seconds = %d\n", cfg.Worker.RetryBackoffSeconds)
		fmt.Printf("job_timeout_seconds = %d\n", cfg.Worker.JobTimeoutSeconds)
		fmt.Printf("cleanup_age_days = %d\n", cfg.Worker.CleanupAgeDays)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a threadline.toml with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("path", config.ConfigFileName, "Where to write the config file")
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configInitCmd)
}
