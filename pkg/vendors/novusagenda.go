package vendors

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// NovusAgenda scrapes the public meeting listing. The portal publishes a
// combined table, so the adapter filters by date window in memory.
type NovusAgenda struct {
	client *Client
	log    *slog.Logger
}

// NewNovusAgenda creates the NovusAgenda adapter.
func NewNovusAgenda(client *Client) *NovusAgenda {
	return &NovusAgenda{client: client, log: slog.With("vendor", models.VendorNovusAgenda)}
}

func (n *NovusAgenda) Name() models.Vendor { return models.VendorNovusAgenda }
func (n *NovusAgenda) SupportsItems() bool { return false }
func (n *NovusAgenda) SupportsVotes() bool { return false }

// FetchMeetings scrapes the responsive meeting listing.
func (n *NovusAgenda) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	base := fmt.Sprintf("https://%s.novusagenda.com/agendapublic", slug)
	body, _, err := n.client.Get(ctx, string(n.Name()), base+"/meetingsresponsive.aspx")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, parseErr(string(n.Name()), "parse listing", err)
	}

	now := time.Now()
	var meetings []models.RawMeeting
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		var date *time.Time
		var title string
		cells.Each(func(i int, cell *goquery.Selection) {
			text := strings.TrimSpace(cell.Text())
			if date == nil {
				date = ParseDate(text)
				if date != nil {
					return
				}
			}
			if title == "" && text != "" && ParseDate(text) == nil {
				title = text
			}
		})
		if !inWindow(date, daysBack, daysForward, now) {
			return
		}

		var agendaURL string
		var packetURLs []string
		row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			resolved := href
			if !strings.HasPrefix(href, "http") {
				resolved = base + "/" + strings.TrimPrefix(href, "/")
			}
			switch {
			case strings.Contains(href, "ViewAgenda.aspx") || strings.Contains(href, "DisplayAgendaPDF.ashx"):
				if strings.Contains(href, "PDF") {
					packetURLs = append(packetURLs, resolved)
				} else {
					agendaURL = resolved
				}
			case strings.Contains(href, "CoverSheet.aspx"):
				if agendaURL == "" {
					agendaURL = resolved
				}
			}
		})

		if title == "" || (agendaURL == "" && len(packetURLs) == 0) {
			return
		}
		meetings = append(meetings, models.RawMeeting{
			VendorMeetingID: novusMeetingID(title, date, agendaURL, packetURLs),
			Title:           title,
			Date:            date,
			AgendaURL:       agendaURL,
			PacketURLs:      packetURLs,
			Status:          statusFromTitle(title),
		})
	})
	return meetings, nil
}

// DiscoverItemAttachments follows a CoverSheet page to its packet PDFs.
func (n *NovusAgenda) DiscoverItemAttachments(ctx context.Context, meetingRef string) ([]models.Attachment, error) {
	return n.client.DiscoverPDFs(ctx, string(n.Name()), meetingRef)
}

// novusMeetingID content-addresses a listing row; the portal embeds its
// meeting id only inside the agenda links, which some cities omit.
func novusMeetingID(title string, date *time.Time, agendaURL string, packetURLs []string) string {
	// prefer the portal's own MeetingID parameter when present
	for _, u := range append([]string{agendaURL}, packetURLs...) {
		if i := strings.Index(u, "MeetingID="); i >= 0 {
			id := u[i+len("MeetingID="):]
			if j := strings.IndexAny(id, "&#"); j >= 0 {
				id = id[:j]
			}
			if id != "" {
				return id
			}
		}
	}
	h := sha256.New()
	h.Write([]byte(title))
	if date != nil {
		h.Write([]byte(date.Format(time.RFC3339)))
	}
	h.Write([]byte(agendaURL))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
