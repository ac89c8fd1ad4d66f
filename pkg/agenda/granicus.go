package agenda

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// ParseGranicus extracts agenda items from a Granicus AgendaViewer page.
// The viewer renders the agenda as a table whose item rows link out to
// MetaViewer documents.
func ParseGranicus(html []byte, pageURL string) ([]models.RawAgendaItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse agenda page: %w", err)
	}

	var items []models.RawAgendaItem
	seq := 0
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		// item rows carry a MetaViewer document link; header and section
		// rows do not
		meta := row.Find("a[href*='MetaViewer']")
		if meta.Length() == 0 {
			return
		}

		title := cleanTitle(row.Find("td").Last().Text())
		if title == "" {
			title = cleanTitle(meta.First().Text())
		}
		if title == "" {
			return
		}

		attachments := extractAttachments(row, pageURL)
		// meta_id distinguishes re-uploaded documents with identical names
		meta.Each(func(i int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if id := metaViewerID(href); id != "" && i < len(attachments) {
				attachments[i].MetaID = id
			}
		})

		items = append(items, models.RawAgendaItem{
			Title:       title,
			Sequence:    seq,
			MatterFile:  extractMatterFile(title),
			Attachments: attachments,
		})
		seq++
	})
	return items, nil
}

// metaViewerID pulls the meta_id parameter from a MetaViewer link.
func metaViewerID(href string) string {
	const key = "meta_id="
	i := strings.Index(href, key)
	if i < 0 {
		return ""
	}
	id := href[i+len(key):]
	if j := strings.IndexAny(id, "&#"); j >= 0 {
		id = id[:j]
	}
	return id
}
