package agenda

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// ParsePrimeGov extracts agenda items from a PrimeGov meeting portal page.
// The portal renders items as numbered rows inside the agenda outline, each
// carrying its attachments as child links.
func ParsePrimeGov(html []byte, pageURL string) ([]models.RawAgendaItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse agenda page: %w", err)
	}

	var items []models.RawAgendaItem
	seq := 0
	doc.Find(".agenda-item, .meeting-item, div[class*='agendaItem'], tr.item-row").Each(func(_ int, sel *goquery.Selection) {
		title := cleanTitle(sel.Find(".item-title, .agenda-item-title, td.title").First().Text())
		if title == "" {
			title = cleanTitle(sel.Find("span, p").First().Text())
		}
		if title == "" {
			return
		}

		item := models.RawAgendaItem{
			Title:       title,
			Sequence:    seq,
			MatterFile:  extractMatterFile(title),
			Attachments: extractAttachments(sel, pageURL),
			Sponsors:    extractSponsors(sel.Find(".sponsors, .item-sponsors").Text()),
		}
		if file := cleanTitle(sel.Find(".item-number, .file-number").First().Text()); file != "" {
			if mf := extractMatterFile(file); mf != "" {
				item.MatterFile = mf
			}
		}
		items = append(items, item)
		seq++
	})
	return items, nil
}
