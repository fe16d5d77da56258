package schedule

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/queue"
)

// Enqueuer is the slice of the job queue the scheduler needs: the ability to
// insert an immediate pending job.
type Enqueuer interface {
	AddJob(jobType string, payload map[string]interface{}) (*queue.Job, error)
}

// entry is one armed schedule: its rule, its payload, and the single-shot
// timer for the next occurrence.
type entry struct {
	id      string
	jobType string
	payload map[string]interface{}
	cadence Cadence
	timer   *time.Timer
	nextRun time.Time
}

// Scheduler maintains named recurring registrations. Each registration arms
// a single-shot timer for its next occurrence; on fire it enqueues the
// configured job and re-arms itself. Nothing is persisted: correctness
// depends on the owning process re-registering its catalog at startup, and
// an exited process simply stops firing.
type Scheduler struct {
	enqueuer Enqueuer
	log      *zap.SugaredLogger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewScheduler creates a scheduler that enqueues through the given queue.
func NewScheduler(enqueuer Enqueuer, log *zap.SugaredLogger) *Scheduler {
	return NewSchedulerWithClock(enqueuer, log, time.Now)
}

// NewSchedulerWithClock is NewScheduler with an injected clock, so tests can
// pin "now" and assert on computed fire times.
func NewSchedulerWithClock(enqueuer Enqueuer, log *zap.SugaredLogger, now func() time.Time) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		log:      log,
		now:      now,
		entries:  make(map[string]*entry),
	}
}

// Hourly registers a job that fires once per hour at a minute offset derived
// from the schedule ID. Idempotent by schedule ID: re-registering replaces
// the existing timer instead of adding a second one.
func (s *Scheduler) Hourly(jobType string, payload map[string]interface{}, scheduleID string) error {
	return s.register(scheduleID, jobType, payload, HourlyCadence(MinuteOffset(scheduleID)))
}

// Daily registers a job that fires once per day at hourOfDay (0-23),
// server-local time. Idempotent by schedule ID.
func (s *Scheduler) Daily(jobType string, payload map[string]interface{}, hourOfDay int, scheduleID string) error {
	if hourOfDay < 0 || hourOfDay > 23 {
		return errors.Newf("invalid hour of day: %d", hourOfDay)
	}
	return s.register(scheduleID, jobType, payload, DailyCadence(hourOfDay))
}

// Weekly registers a job that fires once per week at the given weekday and
// hour (0-23), server-local time. Idempotent by schedule ID.
func (s *Scheduler) Weekly(jobType string, payload map[string]interface{}, dayOfWeek time.Weekday, hourOfDay int, scheduleID string) error {
	if dayOfWeek < time.Sunday || dayOfWeek > time.Saturday {
		return errors.Newf("invalid day of week: %d", dayOfWeek)
	}
	if hourOfDay < 0 || hourOfDay > 23 {
		return errors.Newf("invalid hour of day: %d", hourOfDay)
	}
	return s.register(scheduleID, jobType, payload, WeeklyCadence(dayOfWeek, hourOfDay))
}

func (s *Scheduler) register(scheduleID, jobType string, payload map[string]interface{}, cadence Cadence) error {
	if scheduleID == "" {
		return errors.New("schedule ID cannot be empty")
	}
	if jobType == "" {
		return errors.New("job type cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace, never duplicate: the old timer is disarmed before the new
	// one exists, so one ID always owns at most one pending firing.
	if existing, ok := s.entries[scheduleID]; ok {
		existing.timer.Stop()
	}

	e := &entry{
		id:      scheduleID,
		jobType: jobType,
		payload: payload,
		cadence: cadence,
	}
	s.armLocked(e)
	s.entries[scheduleID] = e

	if s.log != nil {
		s.log.Infow("Recurring job registered",
			"schedule_id", scheduleID,
			"job_type", jobType,
			"cadence", cadence.String(),
			"next_run", e.nextRun,
		)
	}
	return nil
}

// armLocked computes the entry's next occurrence and starts its timer.
// Caller holds s.mu.
func (s *Scheduler) armLocked(e *entry) {
	now := s.now()
	e.nextRun = e.cadence.NextRun(now)
	e.timer = time.AfterFunc(e.nextRun.Sub(now), func() {
		s.fire(e.id)
	})
}

// fire runs one occurrence: enqueue, then re-arm. An enqueue failure is
// logged and the cadence continues; one missed firing must never kill the
// schedule.
func (s *Scheduler) fire(scheduleID string) {
	s.mu.Lock()
	e, ok := s.entries[scheduleID]
	s.mu.Unlock()
	if !ok {
		// Cancelled or replaced while the timer callback was in flight.
		return
	}

	if _, err := s.enqueuer.AddJob(e.jobType, e.payload); err != nil {
		if s.log != nil {
			s.log.Errorw("Recurring job enqueue failed, keeping cadence",
				"schedule_id", e.id,
				"job_type", e.jobType,
				"error", err,
			)
		}
	} else if s.log != nil {
		s.log.Infow("Recurring job enqueued",
			"schedule_id", e.id,
			"job_type", e.jobType,
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-arm only while still the live registration for this ID.
	if current, ok := s.entries[scheduleID]; ok && current == e {
		s.armLocked(e)
	}
}

// CancelAll disarms every timer. Used at shutdown; the scheduler can be
// repopulated afterwards.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		e.timer.Stop()
	}
	count := len(s.entries)
	s.entries = make(map[string]*entry)

	if s.log != nil && count > 0 {
		s.log.Infow("Recurring jobs cancelled", "count", count)
	}
}

// Count returns the number of armed schedules, for health reporting.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NextRunTimes returns the next computed fire time per schedule ID.
func (s *Scheduler) NextRunTimes() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	times := make(map[string]time.Time, len(s.entries))
	for id, e := range s.entries {
		times[id] = e.nextRun
	}
	return times
}
