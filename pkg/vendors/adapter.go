package vendors

import (
	"context"
	"strings"
	"time"

	"github.com/engagic/engagic/pkg/models"
)

// Adapter is the per-platform fetch contract. Every adapter translates one
// civic-tech site into canonical RawMeeting records.
type Adapter interface {
	// Name identifies the vendor.
	Name() models.Vendor

	// SupportsItems reports whether the vendor exposes item-level agendas.
	SupportsItems() bool

	// SupportsVotes reports whether the vendor exposes vote records.
	SupportsVotes() bool

	// FetchMeetings returns the canonical records for one city inside the
	// date window. Each call opens a fresh session; the result is finite and
	// not restartable. Bad individual records are skipped and logged, never
	// returned half-built.
	FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error)
}

// AttachmentDiscoverer is implemented by adapters whose attachments are
// fetched separately from the meeting record.
type AttachmentDiscoverer interface {
	DiscoverItemAttachments(ctx context.Context, meetingRef string) ([]models.Attachment, error)
}

// statusFromTitle infers the vendor-reported meeting status from listing
// text. Portals flag cancellations inline instead of in structured fields.
func statusFromTitle(title string) models.MeetingStatus {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "cancelled") || strings.Contains(t, "canceled"):
		return models.MeetingStatusCancelled
	case strings.Contains(t, "postponed"):
		return models.MeetingStatusPostponed
	case strings.Contains(t, "rescheduled"):
		return models.MeetingStatusRescheduled
	case strings.Contains(t, "revised") || strings.Contains(t, "amended agenda"):
		return models.MeetingStatusRevised
	}
	return models.MeetingStatusScheduled
}

// inWindow filters by date for vendors that only publish a combined listing.
// Undated meetings stay in: they are usually upcoming drafts.
func inWindow(date *time.Time, daysBack, daysForward int, now time.Time) bool {
	if date == nil {
		return true
	}
	lo := now.AddDate(0, 0, -daysBack)
	hi := now.AddDate(0, 0, daysForward)
	return !date.Before(lo) && !date.After(hi)
}
