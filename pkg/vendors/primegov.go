package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/engagic/engagic/pkg/agenda"
	"github.com/engagic/engagic/pkg/models"
)

// PrimeGov fetches from the PrimeGov public portal API. Upcoming meetings
// come from a dedicated endpoint; the archived listing backfills the
// days-back side of the window.
type PrimeGov struct {
	client *Client
	log    *slog.Logger
}

// NewPrimeGov creates the PrimeGov adapter.
func NewPrimeGov(client *Client) *PrimeGov {
	return &PrimeGov{client: client, log: slog.With("vendor", models.VendorPrimeGov)}
}

func (p *PrimeGov) Name() models.Vendor { return models.VendorPrimeGov }
func (p *PrimeGov) SupportsItems() bool { return true }
func (p *PrimeGov) SupportsVotes() bool { return false }

type primeGovMeeting struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	DateTime     string `json:"dateTime"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	VideoURL     string `json:"videoUrl"`
	DocumentList []struct {
		ID               int    `json:"id"`
		TemplateName     string `json:"templateName"`
		CompileOutputType int   `json:"compileOutputType"`
	} `json:"documentList"`
}

// FetchMeetings pulls upcoming and current-year archived meetings, filtered
// to the window in memory.
func (p *PrimeGov) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	now := time.Now()
	base := fmt.Sprintf("https://%s.primegov.com", slug)

	var wire []primeGovMeeting
	upcoming, err := p.list(ctx, base+"/api/v2/PublicPortal/ListUpcomingMeetings")
	if err != nil {
		return nil, err
	}
	wire = append(wire, upcoming...)

	if daysBack > 0 {
		archived, err := p.list(ctx, fmt.Sprintf("%s/api/v2/PublicPortal/ListArchivedMeetings?year=%d", base, now.Year()))
		if err != nil {
			p.log.Warn("archived listing unavailable", "slug", slug, "error", err)
		} else {
			wire = append(wire, archived...)
		}
	}

	seen := make(map[int]bool)
	meetings := make([]models.RawMeeting, 0, len(wire))
	for _, w := range wire {
		if w.ID == 0 || seen[w.ID] {
			continue
		}
		seen[w.ID] = true

		date := ParseDate(w.DateTime)
		if date == nil {
			date = ParseDate(strings.TrimSpace(w.Date + " " + w.Time))
		}
		if !inWindow(date, daysBack, daysForward, now) {
			continue
		}

		m := models.RawMeeting{
			VendorMeetingID: strconv.Itoa(w.ID),
			Title:           w.Title,
			Date:            date,
			Status:          models.MeetingStatusScheduled,
		}
		for _, doc := range w.DocumentList {
			name := strings.ToLower(doc.TemplateName)
			docURL := fmt.Sprintf("%s/Portal/Meeting?meetingTemplateId=%d", base, doc.ID)
			switch {
			case strings.Contains(name, "packet"):
				m.PacketURLs = append(m.PacketURLs,
					fmt.Sprintf("%s/Public/CompiledDocument?meetingTemplateId=%d&compileOutputType=1", base, doc.ID))
			case strings.Contains(name, "agenda"):
				m.AgendaURL = docURL
			}
		}
		if m.Title == "" || (m.AgendaURL == "" && len(m.PacketURLs) == 0) {
			p.log.Warn("skipping meeting without documents", "slug", slug, "meeting_id", w.ID)
			continue
		}

		if m.AgendaURL != "" {
			items, err := p.fetchItems(ctx, m.AgendaURL)
			if err != nil {
				p.log.Warn("agenda page parse failed, falling back to monolithic",
					"slug", slug, "meeting_id", w.ID, "error", err)
			} else {
				m.Items = items
			}
		}
		meetings = append(meetings, m)
	}
	return meetings, nil
}

func (p *PrimeGov) list(ctx context.Context, url string) ([]primeGovMeeting, error) {
	body, _, err := p.client.Get(ctx, string(p.Name()), url)
	if err != nil {
		return nil, err
	}
	var wire []primeGovMeeting
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, parseErr(string(p.Name()), "decode meeting list", err)
	}
	return wire, nil
}

func (p *PrimeGov) fetchItems(ctx context.Context, agendaURL string) ([]models.RawAgendaItem, error) {
	body, _, err := p.client.Get(ctx, string(p.Name()), agendaURL)
	if err != nil {
		return nil, err
	}
	items, err := agenda.ParsePrimeGov(body, agendaURL)
	if err != nil {
		return nil, parseErr(string(p.Name()), "parse agenda items", err)
	}
	return items, nil
}
