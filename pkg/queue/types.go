// Package queue provides the worker pools that drain the durable job queue.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/engagic/engagic/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no claimable pending jobs.
	ErrNoJobsAvailable = errors.New("no jobs available")
)

// Executor processes one claimed job to completion. Implementations write
// their results to the database during execution; the worker only handles
// claiming, the lease-bounded context, and the terminal status transition.
// A returned error marks the job failed (retry-or-dead-letter per the
// queue's policy); nil marks it complete.
type Executor interface {
	Execute(ctx context.Context, job *models.QueueJob) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *models.QueueJob) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, job *models.QueueJob) error {
	return f(ctx, job)
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  int64        `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	JobsFailed    int          `json:"jobs_failed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth contains health information for an entire worker pool.
type PoolHealth struct {
	Name          string             `json:"name"`
	ActiveWorkers int                `json:"active_workers"`
	TotalWorkers  int                `json:"total_workers"`
	QueueStats    *models.QueueStats `json:"queue_stats,omitempty"`
	WorkerStats   []WorkerHealth     `json:"worker_stats"`
}
