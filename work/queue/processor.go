package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/threadline/errors"
)

// ErrInvalidJobType marks failures caused by a job type that has no
// registered handler. These indicate a deployment mismatch (the job was
// enqueued by a different build than the one processing it) and must not
// be retried.
var ErrInvalidJobType = errors.New("invalid job type")

// DefaultJobTimeout bounds a single handler execution unless configured
// otherwise per deployment.
const DefaultJobTimeout = 30 * time.Second

// Processor resolves a job's type to a registered handler and executes it
// with a sanitized payload under a hard timeout.
type Processor struct {
	registry *Registry
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// NewProcessor creates a processor over the given handler registry.
// A non-positive timeout falls back to DefaultJobTimeout.
func NewProcessor(registry *Registry, timeout time.Duration, log *zap.SugaredLogger) *Processor {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &Processor{
		registry: registry,
		timeout:  timeout,
		log:      log,
	}
}

// Process executes one job. Every failure — unknown type, handler error,
// panic, or timeout — comes back as a single error reading
// "Job {type} failed: {cause}", which the queue records into last_error.
func (p *Processor) Process(ctx context.Context, job *Job) error {
	handler := p.registry.Get(job.Type)
	if handler == nil {
		err := errors.Mark(errors.Newf("Invalid job type: %s", job.Type), ErrInvalidJobType)
		return errors.Wrapf(err, "Job %s failed", job.Type)
	}

	payload, err := SanitizePayload(job.Payload)
	if err != nil {
		return errors.Wrapf(err, "Job %s failed", job.Type)
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Race the handler against the timeout. On timeout we stop waiting and
	// report failure; the handler goroutine may keep running to completion
	// in the background — there is no forcible termination.
	done := make(chan error, 1)
	go func() {
		done <- runHandler(execCtx, handler, payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "Job %s failed", job.Type)
		}
		return nil
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			timeoutErr := errors.Mark(
				errors.Newf("Job %s timed out after %s", job.Type, p.timeout),
				errors.ErrTimeout,
			)
			return errors.Wrapf(timeoutErr, "Job %s failed", job.Type)
		}
		// Parent context cancelled (shutdown) - surface as-is so the
		// caller can distinguish it from a job failure.
		return execCtx.Err()
	}
}

// runHandler invokes the handler, converting a panic into an error so one
// misbehaving handler cannot take down the polling loop.
func runHandler(ctx context.Context, handler HandlerFunc, payload map[string]interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

// SanitizePayload decodes a stored payload and strips every top-level key
// whose name begins with an underscore. Those keys are reserved for queue
// bookkeeping (e.g. a future priority hint) and must never reach handlers.
// A nil, empty, or JSON-null payload sanitizes to nil.
func SanitizePayload(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, "payload is not a JSON object")
	}

	for key := range payload {
		if strings.HasPrefix(key, "_") {
			delete(payload, key)
		}
	}

	return payload, nil
}

// Available reports whether a handler is registered for the job type.
// Used for validation and tooling, not on the execution hot path.
func (p *Processor) Available(jobType string) bool {
	return p.registry.Has(jobType)
}

// AvailableTypes returns the registered job types, sorted.
func (p *Processor) AvailableTypes() []string {
	return p.registry.Names()
}

// Timeout returns the configured per-job timeout.
func (p *Processor) Timeout() time.Duration {
	return p.timeout
}
