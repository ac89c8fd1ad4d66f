// Package conductor schedules city syncs and supervises the worker pools.
package conductor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/config"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
)

// Conductor owns the periodic scheduling loop, the fetcher and processor
// pools, and the stuck-job sweeper.
type Conductor struct {
	cfg     *config.Config
	db      *pgxpool.Pool
	cities  *store.CityRepo
	jobs    *store.QueueRepo
	matters *store.MatterRepo

	fetcherPool   *queue.Pool
	processorPool *queue.Pool
	sweeper       *queue.Sweeper
	metrics       *queue.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Conductor supervising the given pools.
func New(cfg *config.Config, db *pgxpool.Pool, cities *store.CityRepo, jobs *store.QueueRepo, matters *store.MatterRepo, fetcherPool, processorPool *queue.Pool, sweeper *queue.Sweeper, metrics *queue.Metrics) *Conductor {
	return &Conductor{
		cfg:           cfg,
		db:            db,
		cities:        cities,
		jobs:          jobs,
		matters:       matters,
		fetcherPool:   fetcherPool,
		processorPool: processorPool,
		sweeper:       sweeper,
		metrics:       metrics,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the pools, the sweeper, and the scheduling loops. An
// immediate sweep recovers jobs orphaned by a previous crash, and an
// immediate schedule pass seeds the queue so a fresh deployment starts
// syncing without waiting a full interval.
func (c *Conductor) Start(ctx context.Context) {
	c.sweeper.Sweep(ctx)
	c.sweeper.Start(ctx)
	c.fetcherPool.Start(ctx)
	c.processorPool.Start(ctx)

	c.scheduleSyncs(ctx)

	c.wg.Add(2)
	go c.runTicker(ctx, c.cfg.SyncInterval, c.scheduleSyncs)
	go c.runTicker(ctx, c.cfg.RetrySweepInterval, c.sweepQueueMetrics)

	slog.Info("Conductor started",
		"sync_interval", c.cfg.SyncInterval,
		"fetcher_workers", c.cfg.FetcherWorkers,
		"processor_workers", c.cfg.ProcessorWorkers)
}

// Stop drains the pools and halts the scheduler.
func (c *Conductor) Stop() {
	slog.Info("Conductor stopping")
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	c.fetcherPool.Stop()
	c.processorPool.Stop()
	c.sweeper.Stop()
	slog.Info("Conductor stopped")
}

func (c *Conductor) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// scheduleSyncs enqueues sync jobs for every active city whose last
// successful sync is older than the freshness threshold. Duplicate pending
// jobs collapse at the queue's unique constraint.
func (c *Conductor) scheduleSyncs(ctx context.Context) {
	threshold := time.Now().Add(-c.cfg.SyncInterval)
	stale, err := c.cities.StaleCities(ctx, c.db, threshold)
	if err != nil {
		slog.Error("Failed to enumerate stale cities", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	enqueued := 0
	for _, city := range stale {
		if err := c.jobs.Enqueue(ctx, c.db, models.JobSyncCity, city.Banana, store.SyncPriority); err != nil {
			slog.Warn("Failed to enqueue sync", "banana", city.Banana, "error", err)
			continue
		}
		enqueued++
	}
	slog.Info("Scheduled city syncs", "stale", len(stale), "enqueued", enqueued)
}

// sweepQueueMetrics refreshes the queue-depth gauges on the retry-sweep
// cadence.
func (c *Conductor) sweepQueueMetrics(ctx context.Context) {
	stats, err := c.jobs.GetStats(ctx, c.db)
	if err != nil {
		slog.Error("Failed to read queue stats", "error", err)
		return
	}
	c.metrics.QueueDepth.WithLabelValues(string(models.JobStatusPending)).Set(float64(stats.Pending))
	c.metrics.QueueDepth.WithLabelValues(string(models.JobStatusProcessing)).Set(float64(stats.Processing))
	c.metrics.QueueDepth.WithLabelValues(string(models.JobStatusDeadLetter)).Set(float64(stats.DeadLetter))
}

// Health is the conductor's operational snapshot for the API layer.
type Health struct {
	FetcherPool    *queue.PoolHealth         `json:"fetcher_pool"`
	ProcessorPool  *queue.PoolHealth         `json:"processor_pool"`
	QueueStats     *models.QueueStats        `json:"queue_stats"`
	LastSweep      time.Time                 `json:"last_sweep"`
	SweepRecovered int                       `json:"sweep_recovered"`
	TrackingIssues []store.TrackingViolation `json:"tracking_issues,omitempty"`
}

// Health gathers pool and queue state.
func (c *Conductor) Health(ctx context.Context) *Health {
	stats, err := c.jobs.GetStats(ctx, c.db)
	if err != nil {
		slog.Error("Failed to read queue stats for health", "error", err)
	}
	lastSweep, recovered := c.sweeper.Stats()

	violations, err := c.matters.ValidateMatterTracking(ctx, c.db)
	if err != nil {
		slog.Error("Matter tracking validation failed", "error", err)
	}

	return &Health{
		FetcherPool:    c.fetcherPool.Health(ctx),
		ProcessorPool:  c.processorPool.Health(ctx),
		QueueStats:     stats,
		LastSweep:      lastSweep,
		SweepRecovered: recovered,
		TrackingIssues: violations,
	}
}
