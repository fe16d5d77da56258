package support

import (
	"strings"
	"time"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/schedule"
)

// Schedule IDs. Stable across restarts: re-running registration replaces
// the armed timer for the same ID instead of duplicating it.
const (
	ScheduleSLASweep       = "sla-sweep-hourly"
	ScheduleJobsCleanup    = "jobs-cleanup-daily"
	ScheduleDailyDigest    = "daily-digest"
	ScheduleArticleRenewal = "article-renewal-hourly"
)

// CleanupRetentionDays is how long completed/failed job rows are kept
// before the daily maintenance sweep deletes them.
const CleanupRetentionDays = 30

// RegisterRecurringJobs arms the full recurring catalog. Safe to call again
// within the same process; every registration is keyed by a stable ID.
func RegisterRecurringJobs(s *schedule.Scheduler) error {
	if err := s.Hourly(JobSLASweep, nil, ScheduleSLASweep); err != nil {
		return errors.Wrap(err, "failed to register SLA sweep")
	}

	cleanupPayload := map[string]interface{}{"retentionDays": CleanupRetentionDays}
	if err := s.Daily(JobCleanupJobs, cleanupPayload, 3, ScheduleJobsCleanup); err != nil {
		return errors.Wrap(err, "failed to register job cleanup")
	}

	if err := s.Daily(JobDailyDigest, nil, 8, ScheduleDailyDigest); err != nil {
		return errors.Wrap(err, "failed to register daily digest")
	}

	// One weekly report per business day, each its own schedule.
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		id := "weekly-report-" + strings.ToLower(day.String())
		payload := map[string]interface{}{"day": day.String()}
		if err := s.Weekly(JobWeeklyReport, payload, day, 7, id); err != nil {
			return errors.Wrapf(err, "failed to register weekly report for %s", day)
		}
	}

	if err := s.Hourly(JobArticleRenewal, nil, ScheduleArticleRenewal); err != nil {
		return errors.Wrap(err, "failed to register article renewal")
	}

	return nil
}
