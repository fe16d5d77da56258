package queue

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/errors"
	testhelpers "github.com/threadline/threadline/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testhelpers.CreateTestDB(t))
}

func mustCreateJob(t *testing.T, store *Store, jobType string, scheduledFor time.Time) *Job {
	t.Helper()
	job, err := NewJobAt(jobType, nil, scheduledFor)
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))
	return job
}

func TestStoreCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)

	payload, err := MarshalPayload(map[string]interface{}{"messageId": "msg-1"})
	require.NoError(t, err)
	job, err := NewJob("search.index-message", payload)
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)

	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "search.index-message", got.Type)
	assert.Equal(t, JobStatusPending, got.Status)
	assert.JSONEq(t, string(payload), string(got.Payload))
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, DefaultMaxAttempts, got.MaxAttempts)
	assert.Empty(t, got.LastError)
}

func TestStoreGetJobNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetJob("no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreDuePendingOrdering(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	later := mustCreateJob(t, store, "b.later", now.Add(-1*time.Minute))
	earliest := mustCreateJob(t, store, "a.earliest", now.Add(-10*time.Minute))
	mustCreateJob(t, store, "c.future", now.Add(time.Hour))

	due, err := store.DuePending(now, 10)
	require.NoError(t, err)

	require.Len(t, due, 2, "future jobs must not be visible")
	assert.Equal(t, earliest.ID, due[0].ID, "oldest scheduled_for dequeues first")
	assert.Equal(t, later.ID, due[1].ID)
}

func TestStoreDuePendingBoundary(t *testing.T) {
	store := newTestStore(t)
	at := time.Now()
	job := mustCreateJob(t, store, "boundary.job", at)

	due, err := store.DuePending(at.Add(-time.Millisecond), 10)
	require.NoError(t, err)
	assert.Empty(t, due, "not visible just before scheduled_for")

	due, err = store.DuePending(at.Add(time.Millisecond), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, job.ID, due[0].ID)
}

func TestStoreDuePendingExcludesNonPending(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	job := mustCreateJob(t, store, "search.index-message", now.Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(job.ID))

	due, err := store.DuePending(now, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "a claimed job must not be dequeued again")
}

func TestStoreDuePendingRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for i := 0; i < 8; i++ {
		mustCreateJob(t, store, "bulk.job", now.Add(-time.Minute))
	}

	due, err := store.DuePending(now, 5)
	require.NoError(t, err)
	assert.Len(t, due, 5)
}

func TestStoreMarkProcessingIncrementsAttempts(t *testing.T) {
	store := newTestStore(t)
	job := mustCreateJob(t, store, "search.index-message", time.Now().Add(-time.Minute))

	require.NoError(t, store.MarkProcessing(job.ID))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestStoreMarkProcessingIsExclusive(t *testing.T) {
	store := newTestStore(t)
	job := mustCreateJob(t, store, "search.index-message", time.Now().Add(-time.Minute))

	require.NoError(t, store.MarkProcessing(job.ID))

	err := store.MarkProcessing(job.ID)
	require.Error(t, err, "second claim on the same row must fail")
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestStoreMarkCompleted(t *testing.T) {
	store := newTestStore(t)
	job := mustCreateJob(t, store, "search.index-message", time.Now().Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(job.ID))

	require.NoError(t, store.MarkCompleted(job.ID))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Empty(t, got.LastError)
}

func TestStoreMarkFailedRecordsError(t *testing.T) {
	store := newTestStore(t)
	job := mustCreateJob(t, store, "unknownType", time.Now().Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(job.ID))

	require.NoError(t, store.MarkFailed(job.ID, "Job unknownType failed: Invalid job type: unknownType"))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "Invalid job type: unknownType")
}

func TestStoreRequeue(t *testing.T) {
	store := newTestStore(t)
	job := mustCreateJob(t, store, "embeddings.update-message", time.Now().Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(job.ID))

	retryAt := time.Now().Add(30 * time.Second)
	require.NoError(t, store.Requeue(job.ID, retryAt, "upstream unavailable"))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts, "requeue keeps the recorded attempt")
	assert.Equal(t, "upstream unavailable", got.LastError)
	assert.False(t, got.Due(time.Now()), "requeued job waits out its backoff")
	assert.True(t, got.Due(retryAt.Add(time.Second)))
}

func TestStoreFinishUnknownJob(t *testing.T) {
	store := newTestStore(t)

	err := store.MarkCompleted("no-such-id")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreListJobsFiltered(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	a := mustCreateJob(t, store, "a.job", now.Add(-time.Minute))
	mustCreateJob(t, store, "b.job", now.Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(a.ID))
	require.NoError(t, store.MarkFailed(a.ID, "boom"))

	failed := JobStatusFailed
	jobs, err := store.ListJobs(&failed, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, a.ID, jobs[0].ID)

	all, err := store.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreCountByStatus(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	mustCreateJob(t, store, "a.job", now)
	mustCreateJob(t, store, "b.job", now)
	c := mustCreateJob(t, store, "c.job", now.Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(c.ID))
	require.NoError(t, store.MarkCompleted(c.ID))

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[JobStatusPending])
	assert.Equal(t, 1, counts[JobStatusCompleted])
	assert.Equal(t, 0, counts[JobStatusFailed])
}

func TestStoreCleanupOldJobs(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	old := mustCreateJob(t, store, "old.job", now.Add(-time.Minute))
	require.NoError(t, store.MarkProcessing(old.ID))
	require.NoError(t, store.MarkCompleted(old.ID))

	// Age the terminal row past the cleanup cutoff.
	_, err := store.db.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`,
		now.Add(-48*time.Hour), old.ID)
	require.NoError(t, err)

	fresh := mustCreateJob(t, store, "fresh.job", now)

	removed, err := store.CleanupOldJobs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetJob(old.ID)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = store.GetJob(fresh.ID)
	assert.NoError(t, err, "pending jobs are never cleaned up")
}

func TestStoreCreateJobDatabaseError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO jobs").WillReturnError(errors.New("disk I/O error"))

	store := NewStore(mockDB)
	job, err := NewJob("search.index-message", nil)
	require.NoError(t, err)

	err = store.CreateJob(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create job")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDuePendingDatabaseError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("database is locked"))

	store := NewStore(mockDB)
	_, err = store.DuePending(time.Now(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list due jobs")
	assert.NoError(t, mock.ExpectationsWereMet())
}
