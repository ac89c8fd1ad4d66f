package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
)

// Pool manages a named set of workers serving one slice of the job kinds.
// The fetcher pool stays small for politeness; the processor pool scales
// with LLM throughput.
type Pool struct {
	name    string
	db      *pgxpool.Pool
	jobs    *store.QueueRepo
	kinds   map[models.JobKind]Executor
	lease   time.Duration
	drain   time.Duration
	count   int
	metrics *Metrics

	workers []*Worker
	mu      sync.Mutex
	started bool
}

// NewPool creates a worker pool.
func NewPool(name string, db *pgxpool.Pool, jobs *store.QueueRepo, kinds map[models.JobKind]Executor, count int, lease, drain time.Duration, metrics *Metrics) *Pool {
	return &Pool{
		name:    name,
		db:      db,
		jobs:    jobs,
		kinds:   kinds,
		lease:   lease,
		drain:   drain,
		count:   count,
		metrics: metrics,
		workers: make([]*Worker, 0, count),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pool", p.name)
		return
	}
	p.started = true

	slog.Info("Starting worker pool", "pool", p.name, "worker_count", p.count)
	for i := 0; i < p.count; i++ {
		worker := NewWorker(fmt.Sprintf("%s-%d", p.name, i), p.db, p.jobs, p.kinds, p.lease, p.metrics)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals all workers to stop and waits for them to finish their
// current jobs, bounded by the drain window. Jobs that outlive the drain are
// recovered later by the sweeper.
func (p *Pool) Stop() {
	slog.Info("Stopping worker pool", "pool", p.name, "drain", p.drain)

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully", "pool", p.name)
	case <-time.After(p.drain):
		slog.Warn("Drain window elapsed with jobs still running; sweeper will recover them",
			"pool", p.name)
	}
}

// Health returns the pool's health snapshot including queue depth.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	stats, err := p.jobs.GetStats(ctx, p.db)
	if err != nil {
		slog.Error("Failed to query queue stats for health check", "pool", p.name, "error", err)
	}

	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	workerStats := make([]WorkerHealth, len(workers))
	active := 0
	for i, worker := range workers {
		workerStats[i] = worker.Health()
		if workerStats[i].Status == WorkerStatusWorking {
			active++
		}
	}

	return &PoolHealth{
		Name:          p.name,
		ActiveWorkers: active,
		TotalWorkers:  len(workers),
		QueueStats:    stats,
		WorkerStats:   workerStats,
	}
}
