package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
)

// Worker is a single queue worker that polls for and processes jobs of a
// fixed set of kinds.
type Worker struct {
	id       string
	pool     *pgxpool.Pool
	jobs     *store.QueueRepo
	kinds    map[models.JobKind]Executor
	lease    time.Duration
	poll     time.Duration
	jitter   time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	metrics  *Metrics

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  int64
	jobsProcessed int
	jobsFailed    int
	lastActivity  time.Time
}

// NewWorker creates a queue worker dispatching on job kind.
func NewWorker(id string, pool *pgxpool.Pool, jobs *store.QueueRepo, kinds map[models.JobKind]Executor, lease time.Duration, metrics *Metrics) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		jobs:         jobs,
		kinds:        kinds,
		lease:        lease,
		poll:         2 * time.Second,
		jitter:       500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		metrics:      metrics,
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// job. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		JobsFailed:    w.jobsFailed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second) // brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims a job of this worker's kinds and drives it to a
// terminal status.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	served := make([]models.JobKind, 0, len(w.kinds))
	for kind := range w.kinds {
		served = append(served, kind)
	}

	job, err := w.jobs.GetNextJob(ctx, w.pool, served...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoJobsAvailable
		}
		return err
	}

	exec := w.kinds[job.Kind]
	log := slog.With("job_id", job.ID, "kind", job.Kind, "payload", job.Payload, "worker_id", w.id)
	log.Info("Job claimed", "priority", job.Priority, "attempt", job.Attempts)
	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, 0)

	// the job's wall-clock is bounded by the queue lease; exceeding it hands
	// the job to the sweeper
	jobCtx, cancel := context.WithTimeout(ctx, w.lease)
	start := time.Now()
	execErr := exec.Execute(jobCtx, job)
	cancel()

	// terminal status updates use a background context: the job context may
	// already be cancelled
	doneCtx, cancelDone := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDone()

	if execErr != nil {
		log.Warn("Job failed", "error", execErr, "elapsed", time.Since(start))
		w.mu.Lock()
		w.jobsFailed++
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.JobsFailed.WithLabelValues(string(job.Kind)).Inc()
		}
		return w.jobs.MarkFailed(doneCtx, w.pool, job.ID, execErr.Error())
	}

	if err := w.jobs.MarkComplete(doneCtx, w.pool, job.ID); err != nil {
		return err
	}
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.JobsProcessed.WithLabelValues(string(job.Kind)).Inc()
	}
	log.Info("Job complete", "elapsed", time.Since(start))
	return nil
}

// pollInterval returns the poll duration with jitter so idle workers spread
// their queue probes.
func (w *Worker) pollInterval() time.Duration {
	if w.jitter <= 0 {
		return w.poll
	}
	offset := time.Duration(rand.Int64N(int64(2 * w.jitter)))
	return w.poll - w.jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
