package support

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/threadline/threadline/internal/testing"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/event"
	"github.com/threadline/threadline/work/queue"
	"github.com/threadline/threadline/work/schedule"
)

type nullEnqueuer struct{}

func (nullEnqueuer) AddJob(jobType string, payload map[string]interface{}) (*queue.Job, error) {
	return queue.NewJob(jobType, nil)
}

func (nullEnqueuer) AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*queue.Job, error) {
	return queue.NewJobAt(jobType, nil, scheduledFor)
}

func TestEventCatalog(t *testing.T) {
	trigger := event.NewTrigger(nullEnqueuer{}, logger.NewTestLogger())
	RegisterEvents(trigger)

	def, ok := trigger.Definition(EventMessageCreated)
	require.True(t, ok)
	assert.Len(t, def.JobTypes, 6, "message.created fans out into six jobs")
	assert.Len(t, trigger.EventNames(), len(Events()))
}

func TestEveryEventJobTypeHasHandler(t *testing.T) {
	registry := queue.NewRegistry()
	store := queue.NewStore(testhelpers.CreateTestDB(t))
	RegisterHandlers(registry, store, logger.NewTestLogger())

	for _, def := range Events() {
		for _, jobType := range def.JobTypes {
			assert.True(t, registry.Has(jobType),
				"event %s maps to unregistered job type %s", def.Name, jobType)
		}
	}
}

func TestRecurringCatalog(t *testing.T) {
	now := time.Date(2026, 3, 9, 4, 0, 0, 0, time.UTC)
	s := schedule.NewSchedulerWithClock(nullEnqueuer{}, logger.NewTestLogger(), func() time.Time { return now })
	defer s.CancelAll()

	require.NoError(t, RegisterRecurringJobs(s))

	// 4 fixed schedules plus 5 per-weekday report variants.
	assert.Equal(t, 9, s.Count())

	// Startup re-registration must not duplicate timers.
	require.NoError(t, RegisterRecurringJobs(s))
	assert.Equal(t, 9, s.Count())

	times := s.NextRunTimes()
	assert.Equal(t, 3, times[ScheduleJobsCleanup].Hour())
	assert.Equal(t, 8, times[ScheduleDailyDigest].Hour())
}

func TestRecurringJobTypesHaveHandlers(t *testing.T) {
	registry := queue.NewRegistry()
	store := queue.NewStore(testhelpers.CreateTestDB(t))
	RegisterHandlers(registry, store, logger.NewTestLogger())

	for _, jobType := range []string{JobSLASweep, JobCleanupJobs, JobDailyDigest, JobWeeklyReport, JobArticleRenewal} {
		assert.True(t, registry.Has(jobType), "recurring job type %s has no handler", jobType)
	}
}

func TestCleanupJobsHandler(t *testing.T) {
	db := testhelpers.CreateTestDB(t)
	store := queue.NewStore(db)

	job, err := queue.NewJob("old.job", nil)
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))
	require.NoError(t, store.MarkProcessing(job.ID))
	require.NoError(t, store.MarkCompleted(job.ID))
	_, err = db.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`,
		time.Now().Add(-40*24*time.Hour), job.ID)
	require.NoError(t, err)

	handler := cleanupJobsHandler(store, logger.NewTestLogger())
	require.NoError(t, handler(context.Background(), map[string]interface{}{"retentionDays": float64(30)}))

	_, err = store.GetJob(job.ID)
	assert.Error(t, err, "aged terminal row must be gone")
}
