package agenda

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// ParseLegistar extracts agenda items from a Legistar InSite calendar detail
// page. The Web API is the primary item source; this parser is the fallback
// for cities whose API tenant is closed but whose InSite portal is public.
func ParseLegistar(html []byte, pageURL string) ([]models.RawAgendaItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse agenda page: %w", err)
	}

	var items []models.RawAgendaItem
	seq := 0
	doc.Find("table.rgMasterTable tr, table[id*='gridMain'] tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		// InSite grids put the file number first and the title last
		fileNo := cleanTitle(cells.First().Text())
		title := cleanTitle(cells.Last().Text())
		if title == "" {
			return
		}

		item := models.RawAgendaItem{
			Title:       title,
			Sequence:    seq,
			MatterFile:  extractMatterFile(fileNo),
			Attachments: extractAttachments(row, pageURL),
		}
		if item.MatterFile == "" {
			item.MatterFile = extractMatterFile(title)
		}
		items = append(items, item)
		seq++
	})
	return items, nil
}
