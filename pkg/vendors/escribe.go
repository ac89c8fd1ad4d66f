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

// EScribe scrapes the eScribe public meeting portal.
type EScribe struct {
	client *Client
	log    *slog.Logger
}

// NewEScribe creates the eScribe adapter.
func NewEScribe(client *Client) *EScribe {
	return &EScribe{client: client, log: slog.With("vendor", models.VendorEScribe)}
}

func (e *EScribe) Name() models.Vendor { return models.VendorEScribe }
func (e *EScribe) SupportsItems() bool { return false }
func (e *EScribe) SupportsVotes() bool { return false }

// FetchMeetings scrapes the portal's meeting cards. The portal lists the
// full year; the window filter runs in memory.
func (e *EScribe) FetchMeetings(ctx context.Context, slug string, daysBack, daysForward int) ([]models.RawMeeting, error) {
	base := fmt.Sprintf("https://pub-%s.escribemeetings.com", slug)
	body, _, err := e.client.Get(ctx, string(e.Name()), base+"/?FillWidth=1")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, parseErr(string(e.Name()), "parse portal", err)
	}

	now := time.Now()
	var meetings []models.RawMeeting
	doc.Find(".meeting, .MeetingRow, .calendar-item").Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find(".meeting-title, h3, h4").First().Text())
		if title == "" {
			title = strings.TrimSpace(card.Find("a").First().Text())
		}

		var date *time.Time
		card.Find(".meeting-date, time, .date").Each(func(_ int, el *goquery.Selection) {
			if date != nil {
				return
			}
			if dt, ok := el.Attr("datetime"); ok {
				date = ParseDate(dt)
			}
			if date == nil {
				date = ParseDate(strings.TrimSpace(el.Text()))
			}
		})
		if !inWindow(date, daysBack, daysForward, now) {
			return
		}

		var agendaURL string
		card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if strings.Contains(href, "Meeting.aspx") || strings.Contains(strings.ToLower(a.Text()), "agenda") {
				if agendaURL == "" {
					agendaURL = resolveEScribeURL(base, href)
				}
			}
		})

		if title == "" || agendaURL == "" {
			return
		}
		meetings = append(meetings, models.RawMeeting{
			VendorMeetingID: escribeMeetingID(agendaURL, title, date),
			Title:           title,
			Date:            date,
			AgendaURL:       agendaURL,
			Status:          statusFromTitle(title),
		})
	})
	return meetings, nil
}

func resolveEScribeURL(base, href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return base + "/" + strings.TrimPrefix(href, "/")
}

func escribeMeetingID(agendaURL, title string, date *time.Time) string {
	// Meeting.aspx?Id=<guid> carries the portal's own id
	if i := strings.Index(agendaURL, "Id="); i >= 0 {
		id := agendaURL[i+3:]
		if j := strings.IndexAny(id, "&#"); j >= 0 {
			id = id[:j]
		}
		if id != "" {
			return id
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
