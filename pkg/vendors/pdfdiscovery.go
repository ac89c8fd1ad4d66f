package vendors

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/engagic/engagic/pkg/models"
)

// maxDiscoveryDepth bounds the page walk when hunting for packet PDFs.
const maxDiscoveryDepth = 2

// pdfLink reports whether href points at a PDF-ish document. Vendors hide
// PDFs behind View.ashx-style handlers as often as behind .pdf paths.
func pdfLink(href string) bool {
	h := strings.ToLower(href)
	if strings.Contains(h, ".pdf") {
		return true
	}
	for _, marker := range []string{"view.ashx", "showdocument", "filestream", "/document/", "getfile", "downloadfile"} {
		if strings.Contains(h, marker) {
			return true
		}
	}
	return false
}

// DiscoverPDFs walks an HTML page (and linked pages, to a bounded depth)
// collecting PDF-style links, resolved against the page URL.
func (c *Client) DiscoverPDFs(ctx context.Context, vendor, pageURL string) ([]models.Attachment, error) {
	seen := make(map[string]bool)
	var out []models.Attachment
	if err := c.discoverPDFs(ctx, vendor, pageURL, 0, seen, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) discoverPDFs(ctx context.Context, vendor, pageURL string, depth int, seen map[string]bool, out *[]models.Attachment) error {
	if depth > maxDiscoveryDepth || seen[pageURL] {
		return nil
	}
	seen[pageURL] = true

	body, contentType, err := c.Get(ctx, vendor, pageURL)
	if err != nil {
		return err
	}
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		*out = append(*out, models.Attachment{Name: pageURL, URL: pageURL, Type: "pdf"})
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return parseErr(vendor, "discover pdfs", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return parseErr(vendor, "discover pdfs", err)
	}

	var followups []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := resolveURL(base, href)
		if resolved == "" || seen[resolved] {
			return
		}
		if pdfLink(resolved) {
			seen[resolved] = true
			name := strings.TrimSpace(sel.Text())
			if name == "" {
				name = resolved
			}
			*out = append(*out, models.Attachment{Name: name, URL: resolved, Type: "pdf"})
			return
		}
		// follow agenda/packet framing pages one level down
		text := strings.ToLower(sel.Text())
		if depth < maxDiscoveryDepth && (strings.Contains(text, "agenda") || strings.Contains(text, "packet")) {
			followups = append(followups, resolved)
		}
	})

	for _, next := range followups {
		if len(*out) > 0 {
			break
		}
		if err := c.discoverPDFs(ctx, vendor, next, depth+1, seen, out); err != nil {
			// a broken linked page never fails the whole discovery
			c.log.Debug("pdf discovery followup failed", "vendor", vendor, "url", next, "error", err)
		}
	}
	return nil
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
