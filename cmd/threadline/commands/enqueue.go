package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/queue"
)

// EnqueueCmd inserts an ad-hoc job for the running worker to pick up.
var EnqueueCmd = &cobra.Command{
	Use:   "enqueue <job-type>",
	Short: "Insert an ad-hoc job",
	Long: `Insert an ad-hoc pending job. A running worker picks it up on its
next poll cycle.

Examples:
  threadline enqueue search.index-message --payload '{"messageId": 42}'
  threadline enqueue reports.daily-digest --delay 1h
  threadline enqueue embeddings.update-message --payload '{"messageId": 7}' --max-attempts 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobType := args[0]

		payload, err := parsePayloadFlag(cmd)
		if err != nil {
			return err
		}

		delay, _ := cmd.Flags().GetDuration("delay")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		var scheduledFor time.Time
		if delay > 0 {
			scheduledFor = time.Now().Add(delay)
		}

		store := queue.NewStore(database)
		raw, err := queue.MarshalPayload(payload)
		if err != nil {
			return err
		}
		job, err := queue.NewJobAt(jobType, raw, scheduledFor)
		if err != nil {
			return err
		}
		if maxAttempts > 0 {
			job.MaxAttempts = maxAttempts
		}
		if err := store.CreateJob(job); err != nil {
			return err
		}

		fmt.Printf("Enqueued %s\n", job.Type)
		fmt.Printf("  ID:            %s\n", job.ID)
		fmt.Printf("  Scheduled for: %s\n", job.ScheduledFor.Format(time.RFC3339))
		fmt.Printf("  Max attempts:  %d\n", job.MaxAttempts)
		return nil
	},
}

func init() {
	EnqueueCmd.Flags().String("payload", "", "Job payload as a JSON object")
	EnqueueCmd.Flags().Duration("delay", 0, "Delay before the job becomes eligible (e.g. 90s, 1h)")
	EnqueueCmd.Flags().Int("max-attempts", 0, "Processing attempts before the job is failed (default 1)")
}

// parsePayloadFlag decodes the --payload JSON object, nil when absent.
func parsePayloadFlag(cmd *cobra.Command) (map[string]interface{}, error) {
	raw, _ := cmd.Flags().GetString("payload")
	if raw == "" {
		return nil, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, errors.Wrap(err, "payload must be a JSON object")
	}
	return payload, nil
}
