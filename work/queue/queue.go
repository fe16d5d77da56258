package queue

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/threadline/errors"
)

// Config contains tuning for the polling loop.
type Config struct {
	BatchSize    int           `json:"batch_size"`    // Jobs fetched (and executed concurrently) per poll cycle
	IdleInterval time.Duration `json:"idle_interval"` // Sleep when a poll returns no ready jobs
	ErrorBackoff time.Duration `json:"error_backoff"` // Sleep after a failed fetch, to avoid a tight error loop
	RetryBackoff time.Duration `json:"retry_backoff"` // Delay before a retryable failed attempt re-enters the queue
	JobTimeout   time.Duration `json:"job_timeout"`   // Hard per-job execution timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:    5,
		IdleInterval: 5 * time.Second,
		ErrorBackoff: 10 * time.Second,
		RetryBackoff: 30 * time.Second,
		JobTimeout:   DefaultJobTimeout,
	}
}

// Queue is the durable background job queue: it enqueues job rows and runs
// a single polling loop that fetches ready batches and executes them through
// the Processor with bounded concurrency.
//
// Construct one Queue per process at the composition root and share it;
// the design assumes a single active poller per deployment.
type Queue struct {
	store     *Store
	processor *Processor
	log       *zap.SugaredLogger

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu            sync.Mutex
	cfg           Config
	running       bool
	activeJobs    int
	jobsProcessed int
}

// NewQueue creates a queue over the given database handle and handler
// registry. The polling loop is not started until Start is called or the
// first job is enqueued.
func NewQueue(db *sql.DB, registry *Registry, cfg Config, log *zap.SugaredLogger) *Queue {
	return NewQueueWithContext(context.Background(), db, registry, cfg, log)
}

// NewQueueWithContext creates a queue whose polling loop is a child of the
// given context. Useful for tests and lifecycle control.
func NewQueueWithContext(ctx context.Context, db *sql.DB, registry *Registry, cfg Config, log *zap.SugaredLogger) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultConfig().IdleInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultConfig().ErrorBackoff
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}

	loopCtx, cancel := context.WithCancel(ctx)
	return &Queue{
		store:     NewStore(db),
		processor: NewProcessor(registry, cfg.JobTimeout, log),
		log:       log,
		parentCtx: ctx,
		ctx:       loopCtx,
		cancel:    cancel,
		cfg:       cfg,
	}
}

// Store exposes the underlying job store for maintenance handlers and tooling.
func (q *Queue) Store() *Store {
	return q.store
}

// Processor exposes the job processor for registry introspection.
func (q *Queue) Processor() *Processor {
	return q.processor
}

// AddJob inserts a pending job scheduled for immediate execution and makes
// sure the polling loop is running.
func (q *Queue) AddJob(jobType string, payload map[string]interface{}) (*Job, error) {
	return q.AddJobAt(jobType, payload, time.Time{})
}

// AddJobAt inserts a pending job that becomes eligible at scheduledFor
// (zero means immediate) and makes sure the polling loop is running.
func (q *Queue) AddJobAt(jobType string, payload map[string]interface{}, scheduledFor time.Time) (*Job, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	job, err := NewJobAt(jobType, raw, scheduledFor)
	if err != nil {
		return nil, err
	}

	if err := q.Enqueue(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue inserts a pre-built job row. Use this instead of AddJob when the
// caller needs control over MaxAttempts or the job ID.
func (q *Queue) Enqueue(job *Job) error {
	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetailf(err, "Job ID: %s", job.ID)
		err = errors.WithDetailf(err, "Job type: %s", job.Type)
		return err
	}

	// Idempotent: a no-op when the loop is already running.
	q.Start()

	return nil
}

// GetPendingJobs returns up to limit ready jobs, oldest-ready-first.
func (q *Queue) GetPendingJobs(limit int) ([]*Job, error) {
	return q.store.DuePending(time.Now(), limit)
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// JobStats is the aggregate count per status, for observability only.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Stats returns aggregate job counts per status.
func (q *Queue) Stats() (*JobStats, error) {
	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job stats")
	}

	stats := &JobStats{
		Pending:    counts[JobStatusPending],
		Processing: counts[JobStatusProcessing],
		Completed:  counts[JobStatusCompleted],
		Failed:     counts[JobStatusFailed],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Failed
	return stats, nil
}

// UpdateConfig applies new loop tuning. The loop picks it up on its next
// cycle; the per-job timeout applies to jobs claimed after the change.
func (q *Queue) UpdateConfig(cfg Config) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cfg.BatchSize > 0 {
		q.cfg.BatchSize = cfg.BatchSize
	}
	if cfg.IdleInterval > 0 {
		q.cfg.IdleInterval = cfg.IdleInterval
	}
	if cfg.ErrorBackoff > 0 {
		q.cfg.ErrorBackoff = cfg.ErrorBackoff
	}
	if cfg.RetryBackoff > 0 {
		q.cfg.RetryBackoff = cfg.RetryBackoff
	}
}

func (q *Queue) config() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

// Start launches the polling loop. Calling it while the loop is already
// running is a no-op; calling it after Stop re-arms the loop under a fresh
// child context.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	// Recreate the child context if a previous Stop cancelled it.
	select {
	case <-q.ctx.Done():
		q.ctx, q.cancel = context.WithCancel(q.parentCtx)
	default:
	}

	q.running = true
	q.wg.Add(1)
	go q.run(q.ctx)

	if q.log != nil {
		q.log.Infow("Job queue polling loop started",
			"batch_size", q.cfg.BatchSize,
			"idle_interval", q.cfg.IdleInterval,
		)
	}
}

// Stop cancels the polling loop. The in-flight sleep wakes immediately and
// does not re-arm; in-flight job executions are allowed to finish (there is
// no hard cancellation of handlers).
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		if q.log != nil {
			q.log.Infow("Job queue stopped, all in-flight jobs finished")
		}
	case <-time.After(timeout):
		if q.log != nil {
			q.log.Warnw("Job queue stop timed out, jobs may still be finishing", "timeout", timeout)
		}
	}
}

// run is the polling loop: fetch a batch of ready jobs, execute them with
// bounded concurrency, poll again immediately; sleep only when idle or
// after a fetch error.
func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cfg := q.config()

		batch, err := q.store.DuePending(time.Now(), cfg.BatchSize)
		if err != nil {
			// Loop-level failure: could not even fetch. Back off longer
			// than the idle interval to avoid hammering a broken store.
			if q.log != nil {
				q.log.Errorw("Failed to fetch pending jobs, backing off",
					"error", err,
					"backoff", cfg.ErrorBackoff,
				)
			}
			if !sleepCtx(ctx, cfg.ErrorBackoff) {
				return
			}
			continue
		}

		if len(batch) == 0 {
			if !sleepCtx(ctx, cfg.IdleInterval) {
				return
			}
			continue
		}

		q.runBatch(batch, cfg)
		// Batch done: poll again immediately for low latency under load.
	}
}

// runBatch executes the fetched jobs on a fixed-size goroutine pool bounded
// by the batch size, and returns once every job in the batch has finished.
func (q *Queue) runBatch(batch []*Job, cfg Config) {
	workers := cfg.BatchSize
	if len(batch) < workers {
		workers = len(batch)
	}

	jobs := make(chan *Job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				q.runJob(job, cfg)
			}
		}()
	}

	for _, job := range batch {
		jobs <- job
	}
	close(jobs)
	wg.Wait()
}

// runJob claims and executes a single job. A handler failure is recorded on
// the row and never propagates: sibling jobs in the batch and the loop
// itself are unaffected.
func (q *Queue) runJob(job *Job, cfg Config) {
	if err := q.store.MarkProcessing(job.ID); err != nil {
		// A conflict means another poller claimed the row first; anything
		// else is a store error. Either way this job is skipped, not failed.
		if !errors.Is(err, errors.ErrConflict) && q.log != nil {
			q.log.Warnw("Failed to claim job", "job_id", job.ID, "error", err)
		}
		return
	}
	job.Attempts++ // mirror the increment MarkProcessing applied

	q.mu.Lock()
	q.activeJobs++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.activeJobs--
		q.jobsProcessed++
		q.mu.Unlock()
	}()

	// Execution deliberately runs under the queue's parent context, not the
	// loop context: Stop() halts polling but lets in-flight jobs finish.
	err := q.processor.Process(q.parentCtx, job)
	if err == nil {
		if mcErr := q.store.MarkCompleted(job.ID); mcErr != nil && q.log != nil {
			q.log.Errorw("Failed to mark job completed", "job_id", job.ID, "error", mcErr)
		}
		if q.log != nil {
			q.log.Infow("Job completed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)
		}
		return
	}

	// Unknown job types indicate a deployment mismatch and are never
	// retried; everything else retries while attempts remain.
	if !errors.Is(err, ErrInvalidJobType) && job.RetriesLeft() {
		at := time.Now().Add(cfg.RetryBackoff)
		if rqErr := q.store.Requeue(job.ID, at, err.Error()); rqErr != nil {
			if q.log != nil {
				q.log.Errorw("Failed to requeue job for retry", "job_id", job.ID, "error", rqErr)
			}
			return
		}
		if q.log != nil {
			q.log.Infow("Job retry scheduled",
				"job_id", job.ID,
				"type", job.Type,
				"attempt", job.Attempts,
				"max_attempts", job.MaxAttempts,
				"retry_at", at,
				"error", err,
			)
		}
		return
	}

	if mfErr := q.store.MarkFailed(job.ID, err.Error()); mfErr != nil && q.log != nil {
		q.log.Errorw("Failed to mark job failed", "job_id", job.ID, "error", mfErr)
	}
	if q.log != nil {
		q.log.Warnw("Job failed",
			"job_id", job.ID,
			"type", job.Type,
			"attempt", job.Attempts,
			"error", err,
		)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
// Returns false when the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
