package store

import (
	"context"
	"encoding/json"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// ItemRepo stores agenda items and their topic links.
type ItemRepo struct{}

// NewItemRepo creates an ItemRepo.
func NewItemRepo() *ItemRepo { return &ItemRepo{} }

// StoreAgendaItems bulk-upserts a meeting's items, idempotent on
// (meeting_id, id). Readers order by sequence, then created_at; created_at is
// the transaction's start time, so items with equal sequence stored in one
// transaction come back in no defined order.
func (r *ItemRepo) StoreAgendaItems(ctx context.Context, q database.Querier, items []models.AgendaItem) error {
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			return models.NewValidationError("id", "required")
		}
		if item.MeetingID == "" {
			return models.NewValidationError("meeting_id", "required")
		}
		if item.Sequence < 0 {
			return models.NewValidationError("sequence", "must be non-negative")
		}

		attachJSON, err := json.Marshal(attachmentsOrEmpty(item.Attachment))
		if err != nil {
			return dbErr("marshal attachments", err)
		}
		sponsorJSON, err := json.Marshal(sponsorsOrEmpty(item.Sponsors))
		if err != nil {
			return dbErr("marshal sponsors", err)
		}

		err = withRetry(ctx, func() error {
			_, err := q.Exec(ctx, `
				INSERT INTO items (id, meeting_id, title, sequence, attachments, sponsors,
				                   matter_id, matter_file)
				VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
				ON CONFLICT (meeting_id, id) DO UPDATE SET
					title = EXCLUDED.title,
					sequence = EXCLUDED.sequence,
					attachments = EXCLUDED.attachments,
					sponsors = EXCLUDED.sponsors,
					matter_id = EXCLUDED.matter_id,
					matter_file = EXCLUDED.matter_file`,
				item.ID, item.MeetingID, item.Title, item.Sequence,
				attachJSON, sponsorJSON, item.MatterID, item.MatterFile)
			return err
		})
		if err != nil {
			return dbErr("store agenda item", err)
		}
	}
	return nil
}

func attachmentsOrEmpty(a []models.Attachment) []models.Attachment {
	if a == nil {
		return []models.Attachment{}
	}
	return a
}

func sponsorsOrEmpty(s []models.Sponsor) []models.Sponsor {
	if s == nil {
		return []models.Sponsor{}
	}
	return s
}

const itemColumns = `
	i.id, i.meeting_id, i.title, i.sequence, i.attachments, i.sponsors,
	COALESCE(i.matter_id, ''), COALESCE(i.matter_file, ''), COALESCE(i.summary, ''), i.created_at`

// GetAgendaItems lists a meeting's items in agenda order with their topics.
func (r *ItemRepo) GetAgendaItems(ctx context.Context, q database.Querier, meetingID string) ([]models.AgendaItem, error) {
	rows, err := q.Query(ctx,
		`SELECT `+itemColumns+` FROM items i WHERE i.meeting_id = $1 ORDER BY i.sequence, i.created_at`,
		meetingID)
	if err != nil {
		return nil, dbErr("get agenda items", err)
	}
	defer rows.Close()

	var items []models.AgendaItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, dbErr("scan agenda item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("get agenda items", err)
	}

	for i := range items {
		topics, err := r.itemTopics(ctx, q, items[i].MeetingID, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Topics = topics
	}
	return items, nil
}

// ItemSummaryUpdate carries one item's summarisation result.
type ItemSummaryUpdate struct {
	MeetingID string
	ItemID    string
	Summary   string
	Topics    []string
}

// UpdateAgendaItem stores one item's summary and topics.
func (r *ItemRepo) UpdateAgendaItem(ctx context.Context, q database.Querier, u ItemSummaryUpdate) error {
	tag, err := q.Exec(ctx,
		`UPDATE items SET summary = $3 WHERE meeting_id = $1 AND id = $2`,
		u.MeetingID, u.ItemID, u.Summary)
	if err != nil {
		return dbErr("update agenda item", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.replaceItemTopics(ctx, q, u.MeetingID, u.ItemID, u.Topics)
}

// BulkUpdateItemSummaries applies many summary updates. Callers wrap this in
// a transaction so a meeting's items appear atomically to readers.
func (r *ItemRepo) BulkUpdateItemSummaries(ctx context.Context, q database.Querier, updates []ItemSummaryUpdate) error {
	for _, u := range updates {
		if err := r.UpdateAgendaItem(ctx, q, u); err != nil {
			return err
		}
	}
	return nil
}

// ApplyCanonicalSummary copies a matter's canonical summary and topics onto
// an item, used when the matter tracker decides the cached summary holds.
func (r *ItemRepo) ApplyCanonicalSummary(ctx context.Context, q database.Querier, meetingID, itemID, matterID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE items SET summary = cm.canonical_summary
		FROM city_matters cm
		WHERE items.meeting_id = $1 AND items.id = $2 AND cm.id = $3`,
		meetingID, itemID, matterID)
	if err != nil {
		return dbErr("apply canonical summary", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := q.Exec(ctx,
		`DELETE FROM item_topics WHERE meeting_id = $1 AND item_id = $2`, meetingID, itemID); err != nil {
		return dbErr("clear item topics", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO item_topics (meeting_id, item_id, topic)
		SELECT $1, $2, topic FROM matter_topics WHERE matter_id = $3
		ON CONFLICT DO NOTHING`,
		meetingID, itemID, matterID)
	if err != nil {
		return dbErr("copy matter topics", err)
	}
	return nil
}

func (r *ItemRepo) replaceItemTopics(ctx context.Context, q database.Querier, meetingID, itemID string, topics []string) error {
	if _, err := q.Exec(ctx,
		`DELETE FROM item_topics WHERE meeting_id = $1 AND item_id = $2`, meetingID, itemID); err != nil {
		return dbErr("clear item topics", err)
	}
	for _, topic := range topics {
		_, err := q.Exec(ctx,
			`INSERT INTO item_topics (meeting_id, item_id, topic) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			meetingID, itemID, topic)
		if err != nil {
			return dbErr("insert item topic", err)
		}
	}
	return nil
}

func (r *ItemRepo) itemTopics(ctx context.Context, q database.Querier, meetingID, itemID string) ([]string, error) {
	rows, err := q.Query(ctx,
		`SELECT topic FROM item_topics WHERE meeting_id = $1 AND item_id = $2 ORDER BY topic`,
		meetingID, itemID)
	if err != nil {
		return nil, dbErr("get item topics", err)
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
		return nil, dbErr("get item topics", err)
	}
	return topics, nil
}

func scanItem(row rowScanner) (*models.AgendaItem, error) {
	var (
		item        models.AgendaItem
		attachJSON  []byte
		sponsorJSON []byte
	)
	err := row.Scan(&item.ID, &item.MeetingID, &item.Title, &item.Sequence,
		&attachJSON, &sponsorJSON, &item.MatterID, &item.MatterFile,
		&item.Summary, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(attachJSON) > 0 {
		if err := json.Unmarshal(attachJSON, &item.Attachment); err != nil {
			return nil, err
		}
	}
	if len(sponsorJSON) > 0 {
		if err := json.Unmarshal(sponsorJSON, &item.Sponsors); err != nil {
			return nil, err
		}
	}
	return &item, nil
}
