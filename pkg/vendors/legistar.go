package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/engagic/engagic/pkg/agenda"
	"github.com/engagic/engagic/pkg/models"
)

// Legistar fetches from the Granicus Legistar Web API. It is the richest
// vendor: item-level agendas, matter files, sponsors, and vote records.
type Legistar struct {
	client *Client
	log    *slog.Logger
	// baseURL is overridable for tests.
	baseURL string
}

// NewLegistar creates the Legistar adapter.
func NewLegistar(client *Client) *Legistar {
	return &Legistar{
		client:  client,
		log:     slog.With("vendor", models.VendorLegistar),
		baseURL: "https://webapi.legistar.com/v1",
	}
}

func (l *Legistar) Name() models.Vendor { return models.VendorLegistar }
func (l *Legistar) SupportsItems() bool { return true }
func (l *Legistar) SupportsVotes() bool { return true }

// legistarEvent is the wire shape of one /Events row.
type legistarEvent struct {
	EventID          int    `json:"EventId"`
	EventBodyName    string `json:"EventBodyName"`
	EventDate        string `json:"EventDate"`
	EventTime        string `json:"EventTime"`
	EventAgendaFile  string `json:"EventAgendaFile"`
	EventInSiteURL   string `json:"EventInSiteURL"`
	EventLastModified string `json:"EventLastModifiedUtc"`
}

type legistarEventItem struct {
	EventItemID             int    `json:"EventItemId"`
	EventItemTitle          string `json:"EventItemTitle"`
	EventItemAgendaSequence int    `json:"EventItemAgendaSequence"`
	EventItemMatterFile     string `json:"EventItemMatterFile"`
	EventItemMatterID       *int   `json:"EventItemMatterId"`
	EventItemPassedFlagName string `json:"EventItemPassedFlagName"`
	EventItemActionDate     string `json:"EventItemActionDate"`
	EventItemMover          string `json:"EventItemMover"`
	EventItemSeconder       string `json:"EventItemSeconder"`
	Attachments             []struct {
		MatterAttachmentName string `json:"MatterAttachmentName"`
		MatterAttachmentHyperlink string `json:"MatterAttachmentHyperlink"`
	} `json:"EventItemMatterAttachments"`
}

// FetchMeetings pulls the events inside the window, then each event's items.
func (l *Legistar) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -daysBack).Format("2006-01-02")
	to := now.AddDate(0, 0, daysForward).Format("2006-01-02")

	url := fmt.Sprintf(
		"%s/%s/Events?$filter=EventDate+ge+datetime'%s'+and+EventDate+le+datetime'%s'&$orderby=EventDate",
		l.baseURL, slug, from, to)

	body, _, err := l.client.Get(ctx, string(l.Name()), url)
	if err != nil {
		return nil, err
	}

	var events []legistarEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, parseErr(string(l.Name()), "decode events", err)
	}

	meetings := make([]models.RawMeeting, 0, len(events))
	for _, ev := range events {
		if ev.EventID == 0 {
			l.log.Warn("skipping event without id", "slug", slug, "body", ev.EventBodyName)
			continue
		}
		m := models.RawMeeting{
			VendorMeetingID: strconv.Itoa(ev.EventID),
			Title:           ev.EventBodyName,
			Date:            combineDateTime(ev.EventDate, ev.EventTime),
			AgendaURL:       ev.EventInSiteURL,
			Status:          models.MeetingStatusScheduled,
			UpdatedAt:       ParseDate(ev.EventLastModified),
		}
		if ev.EventAgendaFile != "" {
			m.PacketURLs = []string{ev.EventAgendaFile}
		}
		if m.AgendaURL == "" && len(m.PacketURLs) == 0 {
			l.log.Warn("skipping event without agenda or packet",
				"slug", slug, "event_id", ev.EventID)
			continue
		}

		items, err := l.fetchItems(ctx, slug, ev.EventID)
		if err != nil && m.AgendaURL != "" {
			// closed API tenant: fall back to scraping the public InSite page
			items, err = l.scrapeItems(ctx, m.AgendaURL)
		}
		if err != nil {
			// item failure degrades the meeting to monolithic rather than
			// dropping it
			l.log.Warn("failed to fetch event items",
				"slug", slug, "event_id", ev.EventID, "error", err)
		} else {
			m.Items = items
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (l *Legistar) fetchItems(ctx context.Context, slug string, eventID int) ([]models.RawAgendaItem, error) {
	url := fmt.Sprintf("%s/%s/Events/%d/EventItems?AgendaNote=1&MinutesNote=1&Attachments=1",
		l.baseURL, slug, eventID)
	body, _, err := l.client.Get(ctx, string(l.Name()), url)
	if err != nil {
		return nil, err
	}

	var wire []legistarEventItem
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, parseErr(string(l.Name()), "decode event items", err)
	}

	items := make([]models.RawAgendaItem, 0, len(wire))
	for i, it := range wire {
		if it.EventItemTitle == "" {
			continue
		}
		seq := it.EventItemAgendaSequence
		if seq <= 0 {
			seq = i
		}
		item := models.RawAgendaItem{
			Title:      it.EventItemTitle,
			Sequence:   seq,
			MatterFile: it.EventItemMatterFile,
		}
		if it.EventItemMatterID != nil {
			item.MatterID = strconv.Itoa(*it.EventItemMatterID)
		}
		for _, a := range it.Attachments {
			if a.MatterAttachmentHyperlink == "" {
				continue
			}
			item.Attachments = append(item.Attachments, models.Attachment{
				Name: a.MatterAttachmentName,
				URL:  a.MatterAttachmentHyperlink,
				Type: "pdf",
			})
		}
		for _, mover := range []string{it.EventItemMover, it.EventItemSeconder} {
			if mover != "" {
				item.Sponsors = append(item.Sponsors, models.Sponsor{Name: mover})
			}
		}
		if vote := legistarVote(it); vote != nil {
			item.Votes = []models.RawVote{*vote}
		}
		items = append(items, item)
	}
	return items, nil
}

func (l *Legistar) scrapeItems(ctx context.Context, agendaURL string) ([]models.RawAgendaItem, error) {
	body, _, err := l.client.Get(ctx, string(l.Name()), agendaURL)
	if err != nil {
		return nil, err
	}
	items, err := agenda.ParseLegistar(body, agendaURL)
	if err != nil {
		return nil, parseErr(string(l.Name()), "parse agenda items", err)
	}
	return items, nil
}

// legistarVote maps the item's passed-flag to a vote record.
func legistarVote(it legistarEventItem) *models.RawVote {
	var outcome models.VoteOutcome
	switch it.EventItemPassedFlagName {
	case "Pass", "Passed", "Adopted", "Approved":
		outcome = models.VotePassed
	case "Fail", "Failed", "Rejected":
		outcome = models.VoteFailed
	case "Tabled", "Deferred":
		outcome = models.VoteTabled
	default:
		return nil
	}
	return &models.RawVote{
		Action:  it.EventItemPassedFlagName,
		Date:    ParseDate(it.EventItemActionDate),
		Outcome: outcome,
	}
}

// combineDateTime merges Legistar's split date and time fields. The API
// serves local civic time with a midnight timestamp on the date field.
func combineDateTime(date, timeOfDay string) *time.Time {
	d := ParseDate(date)
	if d == nil {
		return nil
	}
	if timeOfDay == "" {
		return d
	}
	for _, layout := range []string{"3:04 PM", "15:04"} {
		if t, err := time.Parse(layout, timeOfDay); err == nil {
			combined := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location())
			return &combined
		}
	}
	return d
}
