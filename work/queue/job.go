// Package queue provides Threadline's persistent background job queue:
// durable enqueue over SQLite, a polling dequeue/execute loop, and a
// handler-registry processor with per-job timeouts.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/threadline/threadline/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for statuses that no transition leaves.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DefaultMaxAttempts is the number of processing attempts a job gets unless
// the caller opts into retries. One attempt means a failed handler marks the
// job failed immediately, matching the queue's original delivery contract.
const DefaultMaxAttempts = 1

// Job represents one unit of deferred asynchronous work.
//
// The payload is handler-specific JSON, passed to the handler verbatim except
// for top-level keys beginning with an underscore, which are reserved for
// queue bookkeeping and stripped before dispatch (see Processor).
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"` // Handler registry key, e.g. "search.index-message"
	Payload      json.RawMessage `json:"payload,omitempty"`
	Status       JobStatus       `json:"status"`
	ScheduledFor time.Time       `json:"scheduled_for"` // Earliest eligible dequeue time
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a pending job scheduled for immediate execution.
func NewJob(jobType string, payload json.RawMessage) (*Job, error) {
	return NewJobAt(jobType, payload, time.Now())
}

// NewJobAt creates a pending job that becomes eligible for dequeue at
// scheduledFor. A zero scheduledFor means immediate.
func NewJobAt(jobType string, payload json.RawMessage, scheduledFor time.Time) (*Job, error) {
	if jobType == "" {
		return nil, errors.New("job type cannot be empty")
	}

	now := time.Now()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}

	return &Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		Payload:      payload,
		Status:       JobStatusPending,
		ScheduledFor: scheduledFor,
		Attempts:     0,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Due reports whether the job is eligible for dequeue at the given time.
func (j *Job) Due(now time.Time) bool {
	return j.Status == JobStatusPending && !j.ScheduledFor.After(now)
}

// RetriesLeft reports whether a failed attempt may be re-enqueued.
func (j *Job) RetriesLeft() bool {
	return j.Attempts < j.MaxAttempts
}

// MarshalPayload converts an arbitrary payload map to JSON for storage.
// A nil map marshals to nil (stored as NULL), which handlers receive as nil.
func MarshalPayload(payload map[string]interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}
	return data, nil
}
