package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/threadline/errors"
	testhelpers "github.com/threadline/threadline/internal/testing"
	"github.com/threadline/threadline/logger"
	"github.com/threadline/threadline/work/queue"
)

// storeEnqueuer inserts directly through the job store, so tests can assert
// on what was durably written without a polling loop consuming it.
type storeEnqueuer struct {
	store *queue.Store
}

func (s *storeEnqueuer) AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*queue.Job, error) {
	raw, err := queue.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	job, err := queue.NewJobAt(jobType, raw, scheduledFor)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// failingEnqueuer fails enqueues for the listed job types.
type failingEnqueuer struct {
	inner   *storeEnqueuer
	failFor map[string]bool
}

func (f *failingEnqueuer) AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*queue.Job, error) {
	if f.failFor[jobType] {
		return nil, errors.New("database is locked")
	}
	return f.inner.AddJobAt(jobType, payload, scheduledFor)
}

var messageCreatedJobTypes = []string{
	"search.index-message",
	"embeddings.update-message",
	"conversations.detect-duplicate",
	"notifications.realtime-push",
	"notifications.vip-alert",
	"conversations.categorize",
}

func messageCreatedDef() Definition {
	return Definition{
		Name:     "conversations/message.created",
		Schema:   Schema{"messageId": {Kind: KindNumber, Required: true}},
		JobTypes: messageCreatedJobTypes,
	}
}

func newTestTrigger(t *testing.T) (*Trigger, *queue.Store) {
	t.Helper()
	store := queue.NewStore(testhelpers.CreateTestDB(t))
	trigger := NewTrigger(&storeEnqueuer{store: store}, logger.NewTestLogger())
	trigger.Register(messageCreatedDef())
	return trigger, store
}

func TestTriggerEventFansOut(t *testing.T) {
	trigger, store := newTestTrigger(t)

	jobs, err := trigger.TriggerEvent("conversations/message.created",
		map[string]interface{}{"messageId": float64(42)})
	require.NoError(t, err)
	require.Len(t, jobs, 6)

	// Every row is durable, pending, and carries the same payload.
	types := map[string]bool{}
	for _, job := range jobs {
		stored, err := store.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.JobStatusPending, stored.Status)
		assert.JSONEq(t, `{"messageId":42}`, string(stored.Payload))
		types[stored.Type] = true
	}
	for _, jt := range messageCreatedJobTypes {
		assert.True(t, types[jt], "missing job type %s", jt)
	}
}

func TestTriggerEventImmediateByDefault(t *testing.T) {
	trigger, _ := newTestTrigger(t)
	before := time.Now()

	jobs, err := trigger.TriggerEvent("conversations/message.created",
		map[string]interface{}{"messageId": float64(1)})
	require.NoError(t, err)

	for _, job := range jobs {
		assert.True(t, job.Due(time.Now()), "immediate trigger must be due now")
		assert.False(t, job.ScheduledFor.Before(before))
	}
}

func TestTriggerEventWithDelay(t *testing.T) {
	trigger, _ := newTestTrigger(t)
	before := time.Now()
	delay := 90 * time.Second

	jobs, err := trigger.TriggerEvent("conversations/message.created",
		map[string]interface{}{"messageId": float64(1)},
		WithDelay(delay))
	require.NoError(t, err)

	for _, job := range jobs {
		assert.False(t, job.Due(time.Now()), "delayed trigger must not be due yet")
		diff := job.ScheduledFor.Sub(before)
		assert.InDelta(t, delay.Seconds(), diff.Seconds(), 1.0)
	}
}

func TestTriggerEventValidationFailureEnqueuesNothing(t *testing.T) {
	trigger, store := newTestTrigger(t)

	_, err := trigger.TriggerEvent("conversations/message.created",
		map[string]interface{}{"channel": "email"})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	counts, err := store.CountByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts, "validation failure must precede any enqueue")
}

func TestTriggerEventUnknownEvent(t *testing.T) {
	trigger, _ := newTestTrigger(t)

	_, err := trigger.TriggerEvent("no/such.event", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestTriggerEventPartialEnqueueFailure(t *testing.T) {
	store := queue.NewStore(testhelpers.CreateTestDB(t))
	enq := &failingEnqueuer{
		inner:   &storeEnqueuer{store: store},
		failFor: map[string]bool{"notifications.vip-alert": true},
	}
	trigger := NewTrigger(enq, logger.NewTestLogger())
	trigger.Register(messageCreatedDef())

	jobs, err := trigger.TriggerEvent("conversations/message.created",
		map[string]interface{}{"messageId": float64(7)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications.vip-alert")

	// The five successful enqueues stand; fan-out is not transactional.
	assert.Len(t, jobs, 5)
	counts, cerr := store.CountByStatus()
	require.NoError(t, cerr)
	assert.Equal(t, 5, counts[queue.JobStatusPending])
}

func TestTriggerRegisterDuplicatePanics(t *testing.T) {
	trigger, _ := newTestTrigger(t)
	assert.Panics(t, func() {
		trigger.Register(messageCreatedDef())
	})
}

func TestTriggerEventNames(t *testing.T) {
	trigger, _ := newTestTrigger(t)
	trigger.Register(Definition{
		Name:     "conversations/conversation.resolved",
		JobTypes: []string{"notifications.satisfaction-survey"},
	})

	assert.Equal(t, []string{
		"conversations/conversation.resolved",
		"conversations/message.created",
	}, trigger.EventNames())
}
