package event

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/work/queue"
)

// Enqueuer is the slice of the job queue the trigger needs: durable insert
// of a job scheduled for a given time (zero means immediate).
type Enqueuer interface {
	AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*queue.Job, error)
}

// Trigger resolves event names to their definitions and fans each trigger
// out into one enqueue per mapped job type. The definition table is built
// once at startup and read-only afterwards.
type Trigger struct {
	enqueuer Enqueuer
	log      *zap.SugaredLogger
	now      func() time.Time

	mu   sync.RWMutex
	defs map[string]Definition
}

// NewTrigger creates a trigger with an empty definition table.
func NewTrigger(enqueuer Enqueuer, log *zap.SugaredLogger) *Trigger {
	return &Trigger{
		enqueuer: enqueuer,
		log:      log,
		now:      time.Now,
		defs:     make(map[string]Definition),
	}
}

// Register adds an event definition. Panics on an invalid definition or a
// duplicate name — both are wiring bugs that must fail at startup.
func (t *Trigger) Register(def Definition) {
	if err := def.validate(); err != nil {
		panic(err.Error())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.defs[def.Name]; exists {
		panic("event already registered: " + def.Name)
	}
	t.defs[def.Name] = def
}

// EventNames returns the registered event names, sorted.
func (t *Trigger) EventNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.defs))
	for name := range t.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the registered definition for an event name.
func (t *Trigger) Definition(name string) (Definition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	def, ok := t.defs[name]
	return def, ok
}

// Option adjusts a single TriggerEvent call.
type Option func(*options)

type options struct {
	delay time.Duration
}

// WithDelay schedules every job of the trigger for now+d instead of
// immediately.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// TriggerEvent validates data against the named event's schema and enqueues
// one job per mapped job type, all carrying the same payload and the same
// scheduled-for time. The enqueues run concurrently and the call returns
// once every one is durably stored; execution of the resulting jobs is fully
// decoupled. On a validation failure nothing is enqueued. Partial enqueue
// failures are combined into one error; the successfully stored jobs stand.
func (t *Trigger) TriggerEvent(name string, data map[string]interface{}, opts ...Option) ([]*queue.Job, error) {
	def, ok := t.Definition(name)
	if !ok {
		return nil, errors.NewNotFoundError("unknown event: %s", name)
	}

	if err := def.Schema.Validate(data); err != nil {
		return nil, errors.Wrapf(err, "invalid payload for event %s", name)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var scheduledFor time.Time
	if o.delay > 0 {
		scheduledFor = t.now().Add(o.delay)
	}

	jobs := make([]*queue.Job, len(def.JobTypes))
	errs := make([]error, len(def.JobTypes))
	var wg sync.WaitGroup
	for i, jobType := range def.JobTypes {
		wg.Add(1)
		go func(i int, jobType string) {
			defer wg.Done()
			job, err := t.enqueuer.AddJobAt(jobType, data, scheduledFor)
			if err != nil {
				errs[i] = errors.Wrapf(err, "failed to enqueue %s for event %s", jobType, name)
				return
			}
			jobs[i] = job
		}(i, jobType)
	}
	wg.Wait()

	var combined error
	for _, err := range errs {
		if err != nil {
			combined = errors.CombineErrors(combined, err)
		}
	}
	if combined != nil {
		if t.log != nil {
			t.log.Errorw("Event fan-out partially failed", "event", name, "error", combined)
		}
		return compactJobs(jobs), combined
	}

	if t.log != nil {
		t.log.Infow("Event triggered",
			"event", name,
			"jobs", len(jobs),
			"delay", o.delay,
		)
	}
	return jobs, nil
}

func compactJobs(jobs []*queue.Job) []*queue.Job {
	out := jobs[:0]
	for _, j := range jobs {
		if j != nil {
			out = append(out, j)
		}
	}
	return out
}
