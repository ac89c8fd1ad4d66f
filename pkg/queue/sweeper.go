package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engagic/engagic/pkg/store"
)

// Sweeper periodically returns orphaned processing jobs to pending. A worker
// that died mid-job (crash, OOM, abrupt termination) leaves its row in
// processing; once the lease expires the sweeper makes it claimable again,
// incrementing attempts so a job that keeps outliving its lease walks to
// the dead-letter state. Every replica runs the sweeper independently; a
// row leaves processing on the first reset, so concurrent sweeps touch it
// once.
type Sweeper struct {
	db       *pgxpool.Pool
	jobs     *store.QueueRepo
	lease    time.Duration
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// NewSweeper creates a stuck-job sweeper.
func NewSweeper(db *pgxpool.Pool, jobs *store.QueueRepo, lease time.Duration) *Sweeper {
	interval := lease / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Sweeper{
		db:       db,
		jobs:     jobs,
		lease:    lease,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sweep runs one pass immediately; used at startup to recover jobs orphaned
// by a previous crash of this replica.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

// Stats reports the last scan time and total recoveries.
func (s *Sweeper) Stats() (lastScan time.Time, recovered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan, s.recovered
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.lease)
	n, err := s.jobs.ResetStuck(ctx, s.db, cutoff)

	s.mu.Lock()
	s.lastScan = time.Now()
	s.recovered += n
	s.mu.Unlock()

	if err != nil {
		slog.Error("Stuck job sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("Recovered stuck jobs", "count", n, "older_than", cutoff)
	}
}
