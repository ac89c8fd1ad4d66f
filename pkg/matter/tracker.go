package matter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/store"
)

// Decision is the tracker's verdict for one agenda item.
type Decision int

const (
	// DecisionUntracked: the item forms no matter id and is processed as a
	// one-off.
	DecisionUntracked Decision = iota
	// DecisionNew: first appearance of the matter; summarise and store the
	// result as canonical.
	DecisionNew
	// DecisionReuse: attachments unchanged since the canonical summary;
	// adopt it and skip the LLM.
	DecisionReuse
	// DecisionReprocess: attachments changed; summarise again and update the
	// canonical copy.
	DecisionReprocess
)

// Track is the tracker's output.
type Track struct {
	Decision Decision
	MatterID string
	// Canonical carries the matter row on DecisionReuse/DecisionReprocess.
	Canonical *models.Matter
	// AttachmentHash is the current item's content address.
	AttachmentHash string
}

// Tracker deduplicates recurring legislative items. All writes run on the
// Querier the caller supplies, so a meeting's tracking joins its item
// transaction.
type Tracker struct {
	matters *store.MatterRepo
	log     *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(matters *store.MatterRepo) *Tracker {
	return &Tracker{matters: matters, log: slog.With("component", "matter_tracker")}
}

// TrackItem records the item's appearance and decides whether its summary
// can be reused. The item's MatterID field must already be set (or empty for
// untracked items); meetingDate orders appearances independent of processing
// order.
func (t *Tracker) TrackItem(ctx context.Context, q database.Querier, banana, vendorMatterID string, item *models.AgendaItem, meetingDate *time.Time) (*Track, error) {
	if item.MatterID == "" {
		return &Track{Decision: DecisionUntracked}, nil
	}

	now := time.Now().UTC()
	seen := now
	if meetingDate != nil {
		seen = *meetingDate
	}
	currentHash := AttachmentHash(item.Attachment)

	existing, err := t.matters.GetMatter(ctx, q, item.MatterID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if existing == nil {
		m := &models.Matter{
			ID:              item.MatterID,
			Banana:          banana,
			MatterFile:      item.MatterFile,
			MatterID:        vendorMatterID,
			Title:           NormalizeTitle(item.Title),
			AttachmentHash:  currentHash,
			FirstSeen:       seen,
			LastSeen:        seen,
			AppearanceCount: 1,
		}
		if err := t.matters.StoreMatter(ctx, q, m); err != nil {
			return nil, err
		}
		if _, err := t.createAppearance(ctx, q, item, meetingDate, 1); err != nil {
			return nil, err
		}
		// The upsert may have lost a race with a concurrent worker; the
		// recount below keeps appearance_count exact either way.
		if err := t.matters.UpdateMatterTracking(ctx, q, item.MatterID, seen); err != nil {
			return nil, err
		}
		t.log.Debug("new matter tracked", "matter_id", item.MatterID, "banana", banana)
		return &Track{Decision: DecisionNew, MatterID: item.MatterID, AttachmentHash: currentHash}, nil
	}

	created, err := t.createAppearance(ctx, q, item, meetingDate, existing.AppearanceCount+1)
	if err != nil {
		return nil, err
	}
	if err := t.matters.UpdateMatterTracking(ctx, q, item.MatterID, seen); err != nil {
		return nil, err
	}
	if created {
		t.log.Debug("matter appearance recorded",
			"matter_id", item.MatterID, "meeting_id", item.MeetingID,
			"appearance", existing.AppearanceCount+1)
	}

	if existing.CanonicalSummary != "" && currentHash != "" && currentHash == existing.AttachmentHash {
		return &Track{
			Decision:       DecisionReuse,
			MatterID:       item.MatterID,
			Canonical:      existing,
			AttachmentHash: currentHash,
		}, nil
	}
	return &Track{
		Decision:       DecisionReprocess,
		MatterID:       item.MatterID,
		Canonical:      existing,
		AttachmentHash: currentHash,
	}, nil
}

// Decide re-evaluates the reuse decision from stored state. The processor
// calls this when the job runs, which may be long after the sync that
// tracked the item, and another worker may have produced the canonical summary
// in between.
func (t *Tracker) Decide(ctx context.Context, q database.Querier, item *models.AgendaItem) (*Track, error) {
	if item.MatterID == "" {
		return &Track{Decision: DecisionUntracked}, nil
	}

	existing, err := t.matters.GetMatter(ctx, q, item.MatterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Track{Decision: DecisionUntracked}, nil
		}
		return nil, err
	}

	currentHash := AttachmentHash(item.Attachment)
	track := &Track{MatterID: item.MatterID, Canonical: existing, AttachmentHash: currentHash}
	switch {
	case existing.CanonicalSummary == "":
		track.Decision = DecisionNew
	case currentHash != "" && currentHash == existing.AttachmentHash:
		track.Decision = DecisionReuse
	default:
		track.Decision = DecisionReprocess
	}
	return track, nil
}

// RecordVote sets the matter's disposition and final vote date for terminal
// actions (passed, failed, tabled); other outcomes are ignored. The vote is
// not written to the appearance row.
func (t *Tracker) RecordVote(ctx context.Context, q database.Querier, matterID string, vote *models.RawVote) error {
	disposition := dispositionFor(vote)
	if disposition == "" {
		return nil
	}
	return t.matters.SetDisposition(ctx, q, matterID, disposition, vote.Date)
}

// SetCanonical updates the canonical summary after a reprocess.
func (t *Tracker) SetCanonical(ctx context.Context, q database.Querier, matterID, summary, attachmentHash string, topics []string) error {
	return t.matters.SetCanonical(ctx, q, matterID, summary, attachmentHash, topics)
}

func (t *Tracker) createAppearance(ctx context.Context, q database.Querier, item *models.AgendaItem, meetingDate *time.Time, sequence int) (bool, error) {
	return t.matters.CreateAppearance(ctx, q, &models.MatterAppearance{
		MatterID:  item.MatterID,
		MeetingID: item.MeetingID,
		Date:      meetingDate,
		Sequence:  sequence,
	})
}

// dispositionFor maps a vendor vote action to the matter disposition enum.
func dispositionFor(vote *models.RawVote) models.MatterDisposition {
	if vote == nil {
		return ""
	}
	switch vote.Outcome {
	case models.VotePassed:
		return models.DispositionPassed
	case models.VoteFailed:
		return models.DispositionFailed
	case models.VoteTabled:
		return models.DispositionTabled
	}
	return ""
}
