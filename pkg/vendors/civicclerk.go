package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/engagic/engagic/pkg/models"
)

// CivicClerk fetches from the CivicClerk OData API.
type CivicClerk struct {
	client *Client
	log    *slog.Logger
}

// NewCivicClerk creates the CivicClerk adapter.
func NewCivicClerk(client *Client) *CivicClerk {
	return &CivicClerk{client: client, log: slog.With("vendor", models.VendorCivicClerk)}
}

func (c *CivicClerk) Name() models.Vendor { return models.VendorCivicClerk }
func (c *CivicClerk) SupportsItems() bool { return true }
func (c *CivicClerk) SupportsVotes() bool { return false }

type civicClerkEvent struct {
	ID         int    `json:"id"`
	EventName  string `json:"eventName"`
	EventDate  string `json:"eventDate"`
	AgendaID   *int   `json:"agendaId"`
	PublishedFiles []struct {
		FileID   int    `json:"fileId"`
		Type     string `json:"type"`
		FileName string `json:"fileName"`
	} `json:"publishedFiles"`
	AgendaItems []struct {
		ID         int    `json:"id"`
		Name       string `json:"name"`
		SortOrder  int    `json:"sortOrder"`
		CaseNumber string `json:"caseNumber"`
		Files      []struct {
			FileID   int    `json:"fileId"`
			FileName string `json:"fileName"`
		} `json:"files"`
	} `json:"agendaItems"`
}

type civicClerkPage struct {
	Value []civicClerkEvent `json:"value"`
}

// FetchMeetings queries the events feed inside the window.
func (c *CivicClerk) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	now := time.Now()
	base := fmt.Sprintf("https://%s.api.civicclerk.com/v1", slug)
	from := now.AddDate(0, 0, -daysBack).Format("2006-01-02")
	to := now.AddDate(0, 0, daysForward).Format("2006-01-02")

	url := fmt.Sprintf(
		"%s/Events?$filter=startDateTime+ge+%sT00:00:00Z+and+startDateTime+le+%sT23:59:59Z&$orderby=startDateTime&$expand=agendaItems,publishedFiles",
		base, from, to)

	body, _, err := c.client.Get(ctx, string(c.Name()), url)
	if err != nil {
		return nil, err
	}

	var page civicClerkPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, parseErr(string(c.Name()), "decode events", err)
	}

	meetings := make([]models.RawMeeting, 0, len(page.Value))
	for _, ev := range page.Value {
		if ev.ID == 0 || ev.EventName == "" {
			c.log.Warn("skipping event with missing fields", "slug", slug, "event_id", ev.ID)
			continue
		}

		m := models.RawMeeting{
			VendorMeetingID: strconv.Itoa(ev.ID),
			Title:           ev.EventName,
			Date:            ParseDate(ev.EventDate),
			Status:          models.MeetingStatusScheduled,
		}
		for _, f := range ev.PublishedFiles {
			fileURL := c.fileURL(base, f.FileID)
			switch f.Type {
			case "Agenda", "agenda":
				m.AgendaURL = fileURL
			case "Agenda Packet", "packet":
				m.PacketURLs = append(m.PacketURLs, fileURL)
			}
		}
		if m.AgendaURL == "" && len(m.PacketURLs) == 0 {
			c.log.Warn("skipping event without documents", "slug", slug, "event_id", ev.ID)
			continue
		}

		for i, it := range ev.AgendaItems {
			if it.Name == "" {
				continue
			}
			seq := it.SortOrder
			if seq <= 0 {
				seq = i
			}
			item := models.RawAgendaItem{
				Title:      it.Name,
				Sequence:   seq,
				MatterFile: it.CaseNumber,
				MatterID:   strconv.Itoa(it.ID),
			}
			for _, f := range it.Files {
				item.Attachments = append(item.Attachments, models.Attachment{
					Name: f.FileName,
					URL:  c.fileURL(base, f.FileID),
					Type: "pdf",
				})
			}
			m.Items = append(m.Items, item)
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (c *CivicClerk) fileURL(base string, fileID int) string {
	return fmt.Sprintf("%s/Meetings/GetMeetingFileStream(fileId=%d,plainText=false)", base, fileID)
}
