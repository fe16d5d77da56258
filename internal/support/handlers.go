package support

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/threadline/work/queue"
)

// RegisterHandlers wires every catalog job type into the registry. The
// maintenance handlers do real work against the job store; the business
// handlers are integration points where the application layer (search,
// embeddings, notifications) plugs in its implementations, and log the
// dispatch until then.
func RegisterHandlers(r *queue.Registry, store *queue.Store, log *zap.SugaredLogger) {
	r.Register(JobCleanupJobs, cleanupJobsHandler(store, log))

	for _, jobType := range []string{
		JobIndexMessage,
		JobUpdateEmbedding,
		JobDetectDuplicate,
		JobRealtimePush,
		JobVIPAlert,
		JobCategorize,
		JobIndexConversation,
		JobAutoAssign,
		JobSatisfactionSurvey,
		JobIndexCustomer,
		JobMergeCustomerData,
		JobSLASweep,
		JobDailyDigest,
		JobWeeklyReport,
		JobArticleRenewal,
	} {
		r.Register(jobType, dispatchOnly(jobType, log))
	}
}

// cleanupJobsHandler deletes terminal job rows older than the retention
// window. The payload may override the retention in days.
func cleanupJobsHandler(store *queue.Store, log *zap.SugaredLogger) queue.HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		retentionDays := CleanupRetentionDays
		if v, ok := payload["retentionDays"].(float64); ok && v > 0 {
			retentionDays = int(v)
		}

		removed, err := store.CleanupOldJobs(time.Duration(retentionDays) * 24 * time.Hour)
		if err != nil {
			return err
		}

		if log != nil {
			log.Infow("Old job rows cleaned up",
				"removed", removed,
				"retention_days", retentionDays,
			)
		}
		return nil
	}
}

// dispatchOnly acknowledges a job type whose real implementation lives in
// the application layer. Keeping the registration here means an enqueued
// job never dies with an unknown-type failure while the implementation is
// wired in elsewhere.
func dispatchOnly(jobType string, log *zap.SugaredLogger) queue.HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) error {
		if log != nil {
			log.Infow("Job dispatched", "type", jobType, "payload", payload)
		}
		return nil
	}
}
