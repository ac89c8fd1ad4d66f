package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// MatterRepo stores legislative matters and their appearances.
type MatterRepo struct{}

// NewMatterRepo creates a MatterRepo.
func NewMatterRepo() *MatterRepo { return &MatterRepo{} }

const matterColumns = `
	id, banana, COALESCE(matter_file, ''), COALESCE(matter_id, ''), title,
	COALESCE(canonical_summary, ''), COALESCE(attachment_hash, ''),
	first_seen, last_seen, appearance_count, COALESCE(status, ''), final_vote_date`

// StoreMatter upserts a matter on its composite id. Concurrent processors of
// the same matter race safely through ON CONFLICT.
func (r *MatterRepo) StoreMatter(ctx context.Context, q database.Querier, m *models.Matter) error {
	if m.ID == "" {
		return models.NewValidationError("id", "required")
	}
	if m.Banana == "" {
		return models.NewValidationError("banana", "required")
	}

	err := withRetry(ctx, func() error {
		_, err := q.Exec(ctx, `
			INSERT INTO city_matters (id, banana, matter_file, matter_id, title,
			                          canonical_summary, attachment_hash,
			                          first_seen, last_seen, appearance_count, status, final_vote_date)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5,
			        NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, NULLIF($11, ''), $12)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				canonical_summary = COALESCE(EXCLUDED.canonical_summary, city_matters.canonical_summary),
				attachment_hash = COALESCE(EXCLUDED.attachment_hash, city_matters.attachment_hash),
				last_seen = GREATEST(city_matters.last_seen, EXCLUDED.last_seen),
				status = COALESCE(EXCLUDED.status, city_matters.status),
				final_vote_date = COALESCE(EXCLUDED.final_vote_date, city_matters.final_vote_date)`,
			m.ID, m.Banana, m.MatterFile, m.MatterID, m.Title,
			m.CanonicalSummary, m.AttachmentHash,
			m.FirstSeen, m.LastSeen, m.AppearanceCount, string(m.Status), m.FinalVoteDate)
		return err
	})
	if err != nil {
		return dbErr("store matter", err)
	}

	if m.Topics != nil {
		return r.ReplaceTopics(ctx, q, m.ID, m.Topics)
	}
	return nil
}

// GetMatter fetches one matter with its topics.
func (r *MatterRepo) GetMatter(ctx context.Context, q database.Querier, id string) (*models.Matter, error) {
	row := q.QueryRow(ctx, `SELECT `+matterColumns+` FROM city_matters WHERE id = $1`, id)
	m, err := scanMatter(row)
	if err != nil {
		return nil, dbErr("get matter", err)
	}

	rows, err := q.Query(ctx, `SELECT topic FROM matter_topics WHERE matter_id = $1 ORDER BY topic`, id)
	if err != nil {
		return nil, dbErr("get matter topics", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, dbErr("scan topic", err)
		}
		m.Topics = append(m.Topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get matter topics", err)
	}
	return m, nil
}

// ReplaceTopics swaps the matter's canonical topics.
func (r *MatterRepo) ReplaceTopics(ctx context.Context, q database.Querier, matterID string, topics []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM matter_topics WHERE matter_id = $1`, matterID); err != nil {
		return dbErr("clear matter topics", err)
	}
	for _, topic := range topics {
		_, err := q.Exec(ctx,
			`INSERT INTO matter_topics (matter_id, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			matterID, topic)
		if err != nil {
			return dbErr("insert matter topic", err)
		}
	}
	return nil
}

// CreateAppearance records one occurrence of a matter on a meeting's agenda.
// Idempotent on (matter_id, meeting_id); returns true when a new row was
// created.
func (r *MatterRepo) CreateAppearance(ctx context.Context, q database.Querier, a *models.MatterAppearance) (bool, error) {
	if a.Sequence < 1 {
		return false, models.NewValidationError("sequence", "must be at least 1")
	}
	var tallyJSON []byte
	if a.Tally != nil {
		var err error
		tallyJSON, err = json.Marshal(a.Tally)
		if err != nil {
			return false, dbErr("marshal vote tally", err)
		}
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO matter_appearances (matter_id, meeting_id, date, sequence, vote_outcome, vote_tally)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (matter_id, meeting_id) DO NOTHING`,
		a.MatterID, a.MeetingID, a.Date, a.Sequence, string(a.Outcome), tallyJSON)
	if err != nil {
		return false, dbErr("create appearance", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateMatterTracking bumps last_seen and recomputes appearance_count from
// the appearance rows, keeping the invariant count == COUNT(*) exact even
// under concurrent insertion.
func (r *MatterRepo) UpdateMatterTracking(ctx context.Context, q database.Querier, matterID string, lastSeen time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE city_matters SET
			last_seen = GREATEST(last_seen, $2),
			appearance_count = (SELECT COUNT(*) FROM matter_appearances WHERE matter_id = $1)
		WHERE id = $1`,
		matterID, lastSeen)
	if err != nil {
		return dbErr("update matter tracking", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCanonical replaces the matter's canonical summary, topics, and
// attachment hash after a reprocess.
func (r *MatterRepo) SetCanonical(ctx context.Context, q database.Querier, matterID, summary, attachmentHash string, topics []string) error {
	tag, err := q.Exec(ctx, `
		UPDATE city_matters SET canonical_summary = $2, attachment_hash = $3 WHERE id = $1`,
		matterID, summary, attachmentHash)
	if err != nil {
		return dbErr("set canonical summary", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.ReplaceTopics(ctx, q, matterID, topics)
}

// SetDisposition records a terminal legislative outcome.
func (r *MatterRepo) SetDisposition(ctx context.Context, q database.Querier, matterID string, status models.MatterDisposition, voteDate *time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE city_matters SET status = $2, final_vote_date = $3 WHERE id = $1`,
		matterID, status, voteDate)
	if err != nil {
		return dbErr("set disposition", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TrackingViolation is one integrity failure found by ValidateMatterTracking.
type TrackingViolation struct {
	MatterID string `json:"matter_id"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// ValidateMatterTracking checks the matter-tracking invariants: every
// appearance_count matches its appearance rows, and every item matter_id
// points at an existing matter.
func (r *MatterRepo) ValidateMatterTracking(ctx context.Context, q database.Querier) ([]TrackingViolation, error) {
	var violations []TrackingViolation

	rows, err := q.Query(ctx, `
		SELECT cm.id, cm.appearance_count, COUNT(ma.meeting_id)
		FROM city_matters cm
		LEFT JOIN matter_appearances ma ON ma.matter_id = cm.id
		GROUP BY cm.id, cm.appearance_count
		HAVING cm.appearance_count <> COUNT(ma.meeting_id)`)
	if err != nil {
		return nil, dbErr("validate appearance counts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v TrackingViolation
		var stored, actual int
		if err := rows.Scan(&v.MatterID, &stored, &actual); err != nil {
			return nil, dbErr("scan violation", err)
		}
		v.Kind = "appearance_count_mismatch"
		v.Detail = fmt.Sprintf("stored %d, actual %d", stored, actual)
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("validate appearance counts", err)
	}

	orphanRows, err := q.Query(ctx, `
		SELECT DISTINCT i.matter_id FROM items i
		WHERE i.matter_id IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM city_matters cm WHERE cm.id = i.matter_id)`)
	if err != nil {
		return nil, dbErr("validate item matters", err)
	}
	defer orphanRows.Close()
	for orphanRows.Next() {
		var v TrackingViolation
		if err := orphanRows.Scan(&v.MatterID); err != nil {
			return nil, dbErr("scan violation", err)
		}
		v.Kind = "dangling_item_matter"
		v.Detail = "items reference a matter row that does not exist"
		violations = append(violations, v)
	}
	if err := orphanRows.Err(); err != nil {
		return nil, dbErr("validate item matters", err)
	}

	return violations, nil
}

func scanMatter(row rowScanner) (*models.Matter, error) {
	var (
		m      models.Matter
		status string
	)
	err := row.Scan(&m.ID, &m.Banana, &m.MatterFile, &m.MatterID, &m.Title,
		&m.CanonicalSummary, &m.AttachmentHash,
		&m.FirstSeen, &m.LastSeen, &m.AppearanceCount, &status, &m.FinalVoteDate)
	if err != nil {
		return nil, err
	}
	m.Status = models.MatterDisposition(status)
	return &m, nil
}
