package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/queue"
	"github.com/engagic/engagic/pkg/store"
	testdb "github.com/engagic/engagic/test/database"
)

// seedScope creates the rows a job's scope columns reference.
func seedScope(t *testing.T, pool *pgxpool.Pool, bananas []string, meetings map[string]string) {
	t.Helper()
	ctx := context.Background()
	cityRepo := store.NewCityRepo()
	for _, banana := range bananas {
		require.NoError(t, cityRepo.AddCity(ctx, pool, &models.City{
			Banana: banana, Name: banana[:len(banana)-2], State: banana[len(banana)-2:],
			Vendor: models.VendorLegistar, Slug: banana,
		}))
	}
	meetingRepo := store.NewMeetingRepo()
	for id, banana := range meetings {
		_, err := meetingRepo.StoreMeeting(ctx, pool, &models.Meeting{
			ID: id, Banana: banana, Title: "Council",
			AgendaURL: "https://example.gov/" + id,
		})
		require.NoError(t, err)
	}
}

func TestWorker_ProcessesJobs(t *testing.T) {
	pool := testdb.NewTestPool(t)
	ctx := context.Background()
	repo := store.NewQueueRepo(3)
	metrics := queue.NewMetrics(prometheus.NewRegistry())
	seedScope(t, pool, []string{"paloaltoCA", "nashvilleTN"}, nil)

	processed := make(chan string, 10)
	executor := queue.ExecutorFunc(func(ctx context.Context, job *models.QueueJob) error {
		processed <- job.Payload
		return nil
	})

	require.NoError(t, repo.Enqueue(ctx, pool, models.JobSyncCity, "paloaltoCA", 50))
	require.NoError(t, repo.Enqueue(ctx, pool, models.JobSyncCity, "nashvilleTN", 60))

	worker := queue.NewWorker("test-worker-0", pool, repo,
		map[models.JobKind]queue.Executor{models.JobSyncCity: executor},
		time.Minute, metrics)
	worker.Start(ctx)
	defer worker.Stop()

	var got []string
	for range 2 {
		select {
		case payload := <-processed:
			got = append(got, payload)
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Equal(t, []string{"nashvilleTN", "paloaltoCA"}, got, "higher priority claims first")

	require.Eventually(t, func() bool {
		stats, err := repo.GetStats(ctx, pool)
		return err == nil && stats.Completed == 2
	}, 10*time.Second, 100*time.Millisecond)

	health := worker.Health()
	assert.Equal(t, 2, health.JobsProcessed)
}

func TestWorker_FailureRequeuesWithBackoff(t *testing.T) {
	pool := testdb.NewTestPool(t)
	ctx := context.Background()
	repo := store.NewQueueRepo(3)
	metrics := queue.NewMetrics(prometheus.NewRegistry())
	seedScope(t, pool, []string{"failingXX"}, nil)

	attempted := make(chan int64, 1)
	executor := queue.ExecutorFunc(func(ctx context.Context, job *models.QueueJob) error {
		attempted <- job.ID
		return errors.New("vendor unreachable")
	})

	require.NoError(t, repo.Enqueue(ctx, pool, models.JobSyncCity, "failingXX", 50))

	worker := queue.NewWorker("test-worker-1", pool, repo,
		map[models.JobKind]queue.Executor{models.JobSyncCity: executor},
		time.Minute, metrics)
	worker.Start(ctx)
	defer worker.Stop()

	var jobID int64
	select {
	case jobID = <-attempted:
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for the attempt")
	}

	require.Eventually(t, func() bool {
		job, err := repo.GetJob(ctx, pool, jobID)
		return err == nil && job.Status == models.JobStatusPending
	}, 10*time.Second, 100*time.Millisecond)

	job, err := repo.GetJob(ctx, pool, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "vendor unreachable", job.LastError)
	assert.NotNil(t, job.RunAfter, "failed jobs wait out the back-off before reclaim")
}

func TestSweeper_RecoversOrphans(t *testing.T) {
	pool := testdb.NewTestPool(t)
	ctx := context.Background()
	repo := store.NewQueueRepo(3)
	seedScope(t, pool, []string{"paloaltoCA"}, map[string]string{"m-orphan": "paloaltoCA"})

	require.NoError(t, repo.Enqueue(ctx, pool, models.JobProcessMeeting, "m-orphan", 10))
	job, err := repo.GetNextJob(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, 1, job.Attempts)

	// simulate a worker that died mid-job
	_, err = pool.Exec(ctx,
		`UPDATE queue_jobs SET started_at = now() - interval '30 minutes' WHERE id = $1`, job.ID)
	require.NoError(t, err)

	sweeper := queue.NewSweeper(pool, repo, 10*time.Minute)
	sweeper.Sweep(ctx)

	recovered, err := repo.GetJob(ctx, pool, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, recovered.Status)
	assert.Equal(t, 2, recovered.Attempts, "the reset consumes an attempt like a claim")

	_, count := sweeper.Stats()
	assert.Equal(t, 1, count)
}
