package queue

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/threadline/threadline/errors"
)

// SystemMetrics is a point-in-time snapshot of queue load and host memory,
// surfaced by the stats tooling.
type SystemMetrics struct {
	ActiveJobs    int     `json:"active_jobs"`
	JobsProcessed int     `json:"jobs_processed"`
	QueuedJobs    int     `json:"queued_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// SystemMetrics captures current queue activity together with host memory
// usage. Job counts come from the database; memory from the OS.
func (q *Queue) SystemMetrics() (*SystemMetrics, error) {
	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read queue counts")
	}

	q.mu.Lock()
	active := q.activeJobs
	processed := q.jobsProcessed
	q.mu.Unlock()

	metrics := &SystemMetrics{
		ActiveJobs:    active,
		JobsProcessed: processed,
		QueuedJobs:    counts[JobStatusPending],
		RunningJobs:   counts[JobStatusProcessing],
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		// Memory stats are best-effort; queue counts are still useful.
		return metrics, nil
	}

	const gb = 1024 * 1024 * 1024
	metrics.MemoryUsedGB = float64(vm.Used) / gb
	metrics.MemoryTotalGB = float64(vm.Total) / gb
	metrics.MemoryPercent = vm.UsedPercent

	return metrics, nil
}
