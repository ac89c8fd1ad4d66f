package vendors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// CivicPlus scrapes the Agenda Center. Document links encode the meeting
// date, which doubles as the stable identifier.
type CivicPlus struct {
	client *Client
	log    *slog.Logger
}

// NewCivicPlus creates the CivicPlus adapter.
func NewCivicPlus(client *Client) *CivicPlus {
	return &CivicPlus{client: client, log: slog.With("vendor", models.VendorCivicPlus)}
}

func (c *CivicPlus) Name() models.Vendor { return models.VendorCivicPlus }
func (c *CivicPlus) SupportsItems() bool { return false }
func (c *CivicPlus) SupportsVotes() bool { return false }

// agendaCenterLink matches /AgendaCenter/ViewFile/Agenda/_07222025-1234
var agendaCenterLink = regexp.MustCompile(`/AgendaCenter/ViewFile/(Agenda|Minutes)/_(\d{2})(\d{2})(\d{4})-(\d+)`)

// FetchMeetings scrapes the Agenda Center listing. The slug is the city's
// CivicPlus domain (e.g. "ci.millbrae.ca.us" or "cityofpaloalto").
func (c *CivicPlus) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	host := slug
	if !strings.Contains(host, ".") {
		host = slug + ".civicplus.com"
	}
	base := "https://" + host

	body, _, err := c.client.Get(ctx, string(c.Name()), base+"/AgendaCenter")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, parseErr(string(c.Name()), "parse agenda center", err)
	}

	now := time.Now()
	seen := make(map[string]bool)
	var meetings []models.RawMeeting

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		match := agendaCenterLink.FindStringSubmatch(href)
		if match == nil || match[1] != "Agenda" {
			return
		}

		id := fmt.Sprintf("_%s%s%s-%s", match[2], match[3], match[4], match[5])
		if seen[id] {
			return
		}
		seen[id] = true

		date := ParseDate(fmt.Sprintf("%s/%s/%s", match[2], match[3], match[4]))
		if !inWindow(date, daysBack, daysForward, now) {
			return
		}

		title := strings.TrimSpace(a.AttrOr("aria-label", ""))
		if title == "" {
			// walk up to the listing row for the meeting name
			title = strings.TrimSpace(a.Closest("tr").Find("td").First().Text())
		}
		if title == "" {
			title = "City Meeting"
		}
		title = strings.TrimSpace(strings.TrimPrefix(title, "Download"))

		meetings = append(meetings, models.RawMeeting{
			VendorMeetingID: id,
			Title:           title,
			Date:            date,
			PacketURLs:      []string{base + href},
			Status:          statusFromTitle(title),
		})
	})
	return meetings, nil
}
