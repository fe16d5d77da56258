package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threadline/threadline/internal/support"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/event"
	"github.com/threadline/threadline/work/queue"
)

// TriggerCmd fires a named application event, fanning out its jobs.
var TriggerCmd = &cobra.Command{
	Use:   "trigger <event-name>",
	Short: "Fire an application event",
	Long: `Fire a named event, enqueueing every job type the event maps to.

Examples:
  threadline trigger conversations/message.created --payload '{"messageId": 42}'
  threadline trigger customers/customer.created --payload '{"customerId": 7}' --delay 90s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		payload, err := parsePayloadFlag(cmd)
		if err != nil {
			return err
		}
		delay, _ := cmd.Flags().GetDuration("delay")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		trigger := event.NewTrigger(&storeEnqueuer{store: queue.NewStore(database)}, logger.Logger)
		support.RegisterEvents(trigger)

		var opts []event.Option
		if delay > 0 {
			opts = append(opts, event.WithDelay(delay))
		}

		jobs, err := trigger.TriggerEvent(name, payload, opts...)
		if err != nil {
			if len(jobs) == 0 {
				fmt.Printf("Known events:\n  %s\n", strings.Join(trigger.EventNames(), "\n  "))
			}
			return err
		}

		fmt.Printf("Triggered %s: %d job(s) enqueued\n", name, len(jobs))
		for _, job := range jobs {
			fmt.Printf("  %-32s %s\n", job.Type, job.ID)
		}
		return nil
	},
}

func init() {
	TriggerCmd.Flags().String("payload", "", "Event payload as a JSON object")
	TriggerCmd.Flags().Duration("delay", 0, "Delay applied to every enqueued job")
}
