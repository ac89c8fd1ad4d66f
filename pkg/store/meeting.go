package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// MeetingRepo stores meetings and their topic links.
type MeetingRepo struct{}

// NewMeetingRepo creates a MeetingRepo.
func NewMeetingRepo() *MeetingRepo { return &MeetingRepo{} }

// StoreResult reports what StoreMeeting did.
type StoreResult int

const (
	StoreInserted StoreResult = iota
	StoreUpdated
	StoreUnchanged
)

// StoreMeeting idempotently upserts a meeting by id. When the vendor-side
// updated_at matches the stored copy the row is left alone and
// StoreUnchanged is returned, so callers can skip re-enqueueing.
func (r *MeetingRepo) StoreMeeting(ctx context.Context, q database.Querier, m *models.Meeting) (StoreResult, error) {
	if m.ID == "" {
		return 0, models.NewValidationError("id", "required")
	}
	if m.Banana == "" {
		return 0, models.NewValidationError("banana", "required")
	}
	if !m.HasAgenda() {
		return 0, models.NewValidationError("agenda_url", "meeting carries no agenda or packet URL")
	}

	if m.VendorUpdatedAt != nil {
		var stored *time.Time
		err := q.QueryRow(ctx, `SELECT vendor_updated_at FROM meetings WHERE id = $1`, m.ID).Scan(&stored)
		if err == nil && stored != nil && stored.Equal(*m.VendorUpdatedAt) {
			return StoreUnchanged, nil
		}
	}

	packetJSON, err := json.Marshal(urlsOrEmpty(m.PacketURLs))
	if err != nil {
		return 0, dbErr("marshal packet urls", err)
	}
	var participationJSON []byte
	if m.Participation != nil {
		participationJSON, err = json.Marshal(m.Participation)
		if err != nil {
			return 0, dbErr("marshal participation", err)
		}
	}

	status := m.Status
	if status == "" {
		status = models.MeetingStatusScheduled
	}

	var inserted bool
	err = withRetry(ctx, func() error {
		return q.QueryRow(ctx, `
			INSERT INTO meetings (id, banana, title, date, agenda_url, packet_urls,
			                      participation, status, vendor_updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				date = EXCLUDED.date,
				agenda_url = EXCLUDED.agenda_url,
				packet_urls = EXCLUDED.packet_urls,
				participation = EXCLUDED.participation,
				status = EXCLUDED.status,
				vendor_updated_at = EXCLUDED.vendor_updated_at,
				updated_at = now()
			RETURNING (xmax = 0)`,
			m.ID, m.Banana, m.Title, m.Date, m.AgendaURL, packetJSON,
			participationJSON, status, m.VendorUpdatedAt).Scan(&inserted)
	})
	if err != nil {
		return 0, dbErr("store meeting", err)
	}
	if inserted {
		return StoreInserted, nil
	}
	return StoreUpdated, nil
}

func urlsOrEmpty(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}

const meetingColumns = `
	m.id, m.banana, m.title, m.date, m.agenda_url, m.packet_urls,
	COALESCE(m.summary, ''), m.participation, m.status, m.processing_status,
	COALESCE(m.processing_method, ''), COALESCE(m.processing_time_ms, 0),
	m.vendor_updated_at, m.created_at, m.updated_at,
	EXISTS (SELECT 1 FROM items i WHERE i.meeting_id = m.id) AS has_items`

// GetMeeting fetches one meeting with its topics. Items are not loaded;
// callers needing them use ItemRepo.
func (r *MeetingRepo) GetMeeting(ctx context.Context, q database.Querier, id string) (*models.Meeting, error) {
	row := q.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings m WHERE m.id = $1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		return nil, dbErr("get meeting", err)
	}
	topics, err := r.meetingTopics(ctx, q, id)
	if err != nil {
		return nil, err
	}
	m.Topics = topics
	return m, nil
}

// GetMeetingsForCity lists a city's meetings, newest first.
func (r *MeetingRepo) GetMeetingsForCity(ctx context.Context, q database.Querier, banana string, since *time.Time, limit int) ([]models.Meeting, error) {
	sql := `SELECT ` + meetingColumns + ` FROM meetings m WHERE m.banana = $1`
	args := []any{banana}
	if since != nil {
		args = append(args, *since)
		sql += ` AND m.date >= $2`
	}
	sql += ` ORDER BY m.date DESC NULLS LAST`
	if limit > 0 {
		args = append(args, limit)
		if since != nil {
			sql += ` LIMIT $3`
		} else {
			sql += ` LIMIT $2`
		}
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, dbErr("get meetings for city", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, dbErr("scan meeting", err)
		}
		meetings = append(meetings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get meetings for city", err)
	}
	return meetings, nil
}

// UpdateMeetingSummary stores a summary and replaces the meeting's topics.
func (r *MeetingRepo) UpdateMeetingSummary(ctx context.Context, q database.Querier, id, summary string, topics []string) error {
	tag, err := q.Exec(ctx,
		`UPDATE meetings SET summary = $2, updated_at = now() WHERE id = $1`, id, summary)
	if err != nil {
		return dbErr("update meeting summary", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.ReplaceTopics(ctx, q, id, topics)
}

// ReplaceTopics swaps the meeting's topic rows.
func (r *MeetingRepo) ReplaceTopics(ctx context.Context, q database.Querier, id string, topics []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM meeting_topics WHERE meeting_id = $1`, id); err != nil {
		return dbErr("clear meeting topics", err)
	}
	for _, topic := range topics {
		_, err := q.Exec(ctx,
			`INSERT INTO meeting_topics (meeting_id, topic) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, topic)
		if err != nil {
			return dbErr("insert meeting topic", err)
		}
	}
	return nil
}

// SetParticipation fills in participation details discovered after the
// meeting row was stored (e.g. parsed out of the agenda text).
func (r *MeetingRepo) SetParticipation(ctx context.Context, q database.Querier, id string, p *models.Participation) error {
	participationJSON, err := json.Marshal(p)
	if err != nil {
		return dbErr("marshal participation", err)
	}
	tag, err := q.Exec(ctx,
		`UPDATE meetings SET participation = $2, updated_at = now() WHERE id = $1`, id, participationJSON)
	if err != nil {
		return dbErr("set participation", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMeetingStatus sets the vendor-reported meeting status.
func (r *MeetingRepo) UpdateMeetingStatus(ctx context.Context, q database.Querier, id string, status models.MeetingStatus) error {
	tag, err := q.Exec(ctx,
		`UPDATE meetings SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return dbErr("update meeting status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProcessingStatus moves the summarisation lifecycle state.
func (r *MeetingRepo) SetProcessingStatus(ctx context.Context, q database.Querier, id string, status models.ProcessingStatus) error {
	tag, err := q.Exec(ctx,
		`UPDATE meetings SET processing_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return dbErr("set processing status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProcessingResult records the terminal outcome of a processing job.
func (r *MeetingRepo) SetProcessingResult(ctx context.Context, q database.Querier, id string, status models.ProcessingStatus, method models.ProcessingMethod, elapsed time.Duration) error {
	tag, err := q.Exec(ctx, `
		UPDATE meetings
		SET processing_status = $2, processing_method = $3, processing_time_ms = $4, updated_at = now()
		WHERE id = $1`,
		id, status, method, elapsed.Milliseconds())
	if err != nil {
		return dbErr("set processing result", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MeetingRepo) meetingTopics(ctx context.Context, q database.Querier, id string) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT topic FROM meeting_topics WHERE meeting_id = $1 ORDER BY topic`, id)
	if err != nil {
		return nil, dbErr("get meeting topics", err)
	}
	defer rows.Close()
	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, dbErr("scan topic", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get meeting topics", err)
	}
	return topics, nil
}

func scanMeeting(row rowScanner) (*models.Meeting, error) {
	var (
		m                 models.Meeting
		packetJSON        []byte
		participationJSON []byte
		method            string
	)
	err := row.Scan(&m.ID, &m.Banana, &m.Title, &m.Date, &m.AgendaURL, &packetJSON,
		&m.Summary, &participationJSON, &m.Status, &m.ProcessingStatus,
		&method, &m.ProcessingTimeMS, &m.VendorUpdatedAt, &m.CreatedAt, &m.UpdatedAt,
		&m.HasItems)
	if err != nil {
		return nil, err
	}
	if len(packetJSON) > 0 {
		if err := json.Unmarshal(packetJSON, &m.PacketURLs); err != nil {
			return nil, err
		}
	}
	if len(participationJSON) > 0 {
		m.Participation = &models.Participation{}
		if err := json.Unmarshal(participationJSON, m.Participation); err != nil {
			return nil, err
		}
	}
	m.ProcessingMethod = models.ProcessingMethod(method)
	return &m, nil
}
