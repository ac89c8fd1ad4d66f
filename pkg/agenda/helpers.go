// Package agenda extracts agenda items from vendor meeting HTML pages.
// Each vendor parser is its own file and shares only the helpers here; the
// parsers extract what the HTML truthfully offers and never decide what to
// summarise.
package agenda

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// matterFilePattern matches public legislative numbers like "BL2025-1098",
// "ORD-2024-17", "RES 25-003", "2025-0456".
var matterFilePattern = regexp.MustCompile(`\b(?:[A-Z]{1,5}[-\s]?)?\d{2,4}-\d{2,5}\b`)

// extractAttachments collects document links under sel, resolved against
// baseURL. Unknown document types are preserved with type "unknown".
func extractAttachments(sel *goquery.Selection, baseURL string) []models.Attachment {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var out []models.Attachment
	seen := make(map[string]bool)
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" || seen[resolved] {
			return
		}

		kind := attachmentType(resolved)
		if kind == "" {
			return
		}
		seen[resolved] = true

		name := strings.TrimSpace(a.Text())
		if name == "" {
			name = resolved
		}
		out = append(out, models.Attachment{Name: name, URL: resolved, Type: kind})
	})
	return out
}

// attachmentType classifies a document link, or returns "" for plain
// navigation links.
func attachmentType(href string) string {
	h := strings.ToLower(href)
	switch {
	case strings.Contains(h, ".pdf") || strings.Contains(h, "view.ashx") ||
		strings.Contains(h, "showdocument") || strings.Contains(h, "filestream") ||
		strings.Contains(h, "metaviewer"):
		return "pdf"
	case strings.Contains(h, ".doc") || strings.Contains(h, ".docx"):
		return "doc"
	case strings.Contains(h, ".xls") || strings.Contains(h, ".xlsx"):
		return "spreadsheet"
	case strings.Contains(h, "legislationdetail") || strings.Contains(h, "/attachment"):
		return "unknown"
	}
	return ""
}

// extractSponsors pulls council-member references from a sponsor label.
func extractSponsors(text string) []models.Sponsor {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"Sponsors:", "Sponsor:", "Sponsored by:", "Introduced by:"} {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
			break
		}
	}
	if text == "" {
		return nil
	}

	var out []models.Sponsor
	for _, name := range strings.Split(text, ",") {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, "and") {
			continue
		}
		out = append(out, models.Sponsor{Name: name})
	}
	return out
}

// extractMatterFile finds a public legislative number in text, or "".
func extractMatterFile(text string) string {
	return strings.TrimSpace(matterFilePattern.FindString(text))
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if base == nil {
		if strings.HasPrefix(href, "http") {
			return href
		}
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// cleanTitle collapses whitespace runs the portals love to embed.
var whitespaceRun = regexp.MustCompile(`\s+`)

func cleanTitle(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
