package store

import (
	"context"
	"strings"
	"time"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// QueueRepo is the durable priority job queue.
type QueueRepo struct {
	// MaxAttempts before a failing job is dead-lettered.
	MaxAttempts int
}

// NewQueueRepo creates a QueueRepo.
func NewQueueRepo(maxAttempts int) *QueueRepo {
	return &QueueRepo{MaxAttempts: maxAttempts}
}

const jobColumns = `
	id, kind, payload, priority, status, attempts, COALESCE(last_error, ''),
	run_after, created_at, started_at, completed_at`

// Enqueue inserts a pending job, idempotent on (kind, payload) among pending
// rows. A duplicate enqueue with a higher priority bumps the existing row to
// the front instead of creating a second one. The scope columns derived from
// the payload cascade the job away with its owning city or meeting.
func (r *QueueRepo) Enqueue(ctx context.Context, q database.Querier, kind models.JobKind, payload string, priority int) error {
	if !kind.Valid() {
		return models.NewValidationError("kind", "unknown job kind "+string(kind))
	}
	if payload == "" {
		return models.NewValidationError("payload", "required")
	}

	var banana, meetingID *string
	switch kind {
	case models.JobSyncCity:
		banana = &payload
	case models.JobProcessMeeting:
		meetingID = &payload
	case models.JobProcessItem:
		// process_item payloads are meeting_id/item_id
		m, _, _ := strings.Cut(payload, "/")
		meetingID = &m
	}

	err := withRetry(ctx, func() error {
		_, err := q.Exec(ctx, `
			INSERT INTO queue_jobs (kind, payload, priority, status, banana, meeting_id)
			VALUES ($1, $2, $3, 'pending', $4, $5)
			ON CONFLICT (kind, payload) WHERE status = 'pending' DO UPDATE SET
				priority = GREATEST(queue_jobs.priority, EXCLUDED.priority)`,
			kind, payload, priority, banana, meetingID)
		return err
	})
	if err != nil {
		return dbErr("enqueue", err)
	}
	return nil
}

// GetNextJob atomically claims the highest-priority pending job: the inner
// SELECT takes the row lock with SKIP LOCKED so concurrent workers never
// block on the queue head, and the UPDATE transitions it to processing in
// the same statement. Passing kinds restricts the claim to those job kinds
// so the fetcher and processor pools never steal each other's work; no
// kinds means any. Returns ErrNotFound when nothing is claimable.
func (r *QueueRepo) GetNextJob(ctx context.Context, q database.Querier, kinds ...models.JobKind) (*models.QueueJob, error) {
	kindFilter := ""
	var args []any
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		args = append(args, names)
		kindFilter = " AND kind = ANY($1)"
	}

	row := q.QueryRow(ctx, `
		UPDATE queue_jobs SET
			status = 'processing',
			started_at = now(),
			attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queue_jobs
			WHERE status = 'pending' AND (run_after IS NULL OR run_after <= now())`+kindFilter+`
			ORDER BY priority DESC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, args...)
	job, err := scanJob(row)
	if err != nil {
		return nil, dbErr("claim job", err)
	}
	return job, nil
}

// MarkComplete finishes a job successfully.
func (r *QueueRepo) MarkComplete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE queue_jobs SET status = 'completed', completed_at = now()
		WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return dbErr("mark complete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failure. Jobs under the attempt limit return to
// pending with an exponential back-off delay (10s × 2^attempts); jobs at the
// limit are dead-lettered with the error retained for inspection.
func (r *QueueRepo) MarkFailed(ctx context.Context, q database.Querier, id int64, jobErr string) error {
	row := q.QueryRow(ctx, `SELECT attempts FROM queue_jobs WHERE id = $1`, id)
	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return dbErr("mark failed", err)
	}

	if attempts >= r.MaxAttempts {
		tag, err := q.Exec(ctx, `
			UPDATE queue_jobs SET status = 'dead_letter', last_error = $2, completed_at = now()
			WHERE id = $1`, id, jobErr)
		if err != nil {
			return dbErr("dead letter", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}

	runAfter := time.Now().Add(RetryDelay(attempts))
	tag, err := q.Exec(ctx, `
		UPDATE queue_jobs SET status = 'pending', last_error = $2, run_after = $3
		WHERE id = $1`, id, jobErr, runAfter)
	if err != nil {
		return dbErr("requeue failed job", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RetryDelay is the back-off before a failed job becomes claimable again.
func RetryDelay(attempts int) time.Duration {
	return 10 * time.Second * (1 << attempts)
}

// ResetStuck returns processing jobs whose lease expired to pending so
// another worker can pick them up, incrementing attempts as a claim would.
// Jobs already at the attempt limit are dead-lettered instead. Returns the
// number of rows touched.
func (r *QueueRepo) ResetStuck(ctx context.Context, q database.Querier, olderThan time.Time) (int, error) {
	dead, err := q.Exec(ctx, `
		UPDATE queue_jobs SET status = 'dead_letter',
			last_error = COALESCE(last_error, 'job lease expired'), completed_at = now()
		WHERE status = 'processing' AND started_at < $1 AND attempts >= $2`,
		olderThan, r.MaxAttempts)
	if err != nil {
		return 0, dbErr("dead letter stuck jobs", err)
	}

	reset, err := q.Exec(ctx, `
		UPDATE queue_jobs SET status = 'pending', started_at = NULL,
			attempts = attempts + 1,
			last_error = COALESCE(last_error, 'job lease expired')
		WHERE status = 'processing' AND started_at < $1`, olderThan)
	if err != nil {
		return 0, dbErr("reset stuck jobs", err)
	}
	return int(dead.RowsAffected() + reset.RowsAffected()), nil
}

// GetStats returns queue depth by status.
func (r *QueueRepo) GetStats(ctx context.Context, q database.Querier) (*models.QueueStats, error) {
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM queue_jobs GROUP BY status`)
	if err != nil {
		return nil, dbErr("queue stats", err)
	}
	defer rows.Close()

	stats := &models.QueueStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, dbErr("scan stats", err)
		}
		switch models.JobStatus(status) {
		case models.JobStatusPending:
			stats.Pending = count
		case models.JobStatusProcessing:
			stats.Processing = count
		case models.JobStatusCompleted:
			stats.Completed = count
		case models.JobStatusFailed:
			stats.Failed = count
		case models.JobStatusDeadLetter:
			stats.DeadLetter = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("queue stats", err)
	}
	return stats, nil
}

// GetJob fetches one job by id.
func (r *QueueRepo) GetJob(ctx context.Context, q database.Querier, id int64) (*models.QueueJob, error) {
	row := q.QueryRow(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, dbErr("get job", err)
	}
	return job, nil
}

func scanJob(row rowScanner) (*models.QueueJob, error) {
	var j models.QueueJob
	err := row.Scan(&j.ID, &j.Kind, &j.Payload, &j.Priority, &j.Status, &j.Attempts,
		&j.LastError, &j.RunAfter, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// MeetingPriority computes the enqueue priority for a meeting: recent
// meetings jump to the front of the queue.
func MeetingPriority(meetingDate *time.Time, now time.Time) int {
	if meetingDate == nil {
		return 0
	}
	days := int(now.Sub(*meetingDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	p := 100 - days
	if p < 0 {
		p = 0
	}
	return p
}

// SyncPriority is the default priority for city sync jobs.
const SyncPriority = 50
