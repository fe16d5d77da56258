package queue

import (
	"database/sql"
	"time"

	"github.com/threadline/threadline/errors"
)

// Store handles persistence of background jobs.
// Every status transition is a single atomic UPDATE keyed by job id.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job row
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (
			id, type, payload, status, scheduled_for,
			attempts, max_attempts, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(job.Payload), Valid: len(job.Payload) > 0}
	lastError := sql.NullString{String: job.LastError, Valid: job.LastError != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Type,
		payload,
		job.Status,
		job.ScheduledFor,
		job.Attempts,
		job.MaxAttempts,
		lastError,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs WHERE id = ?`

	var job Job
	err := ScanJobFromRow(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return &job, nil
}

// DuePending returns up to limit pending jobs whose scheduled_for has
// passed, oldest-ready-first. This is the dequeue query: a job is visible
// here iff status = pending AND scheduled_for <= now.
func (s *Store) DuePending(now time.Time, limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for ASC
		LIMIT ?`

	rows, err := s.db.Query(query, JobStatusPending, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "due jobs")
}

// MarkProcessing claims a pending job: transitions it to processing and
// increments its attempt counter. The conditional status check makes the
// claim atomic, so a second concurrent poller cannot claim the same row.
func (s *Store) MarkProcessing(id string) error {
	query := `
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, JobStatusProcessing, time.Now(), id, JobStatusPending)
	if err != nil {
		return errors.Wrap(err, "failed to mark job processing")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Mark(errors.Newf("job %s is not pending", id), errors.ErrConflict)
	}

	return nil
}

// MarkCompleted transitions a processing job to completed.
func (s *Store) MarkCompleted(id string) error {
	return s.finish(id, JobStatusCompleted, "")
}

// MarkFailed transitions a processing job to failed, recording the error
// message into last_error.
func (s *Store) MarkFailed(id string, errMsg string) error {
	return s.finish(id, JobStatusFailed, errMsg)
}

func (s *Store) finish(id string, status JobStatus, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`

	lastError := sql.NullString{String: errMsg, Valid: errMsg != ""}

	result, err := s.db.Exec(query, status, lastError, time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s", status)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}

	return nil
}

// Requeue returns a job to pending, scheduled for the given time. Used by
// the retry path; attempts already recorded stay in place.
func (s *Store) Requeue(id string, at time.Time, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = ?, scheduled_for = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`

	lastError := sql.NullString{String: errMsg, Valid: errMsg != ""}

	result, err := s.db.Exec(query, JobStatusPending, at, lastError, time.Now(), id)
	if err != nil {
		return errors.Wrap(err, "failed to requeue job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("job not found: %s", id)
	}

	return nil
}

// ListJobs returns jobs newest-first, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// CountByStatus returns the number of jobs per status.
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs by status")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan status count")
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating status counts")
	}

	return counts, nil
}

// CleanupOldJobs removes completed/failed jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}
