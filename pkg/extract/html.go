package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelectors are stripped before text extraction: navigation,
// chrome, and script noise that would poison the summary.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "nav", "header", "footer", "aside",
	"form", "iframe", ".nav", ".menu", ".sidebar", ".breadcrumb",
	"#header", "#footer", "#navigation",
}

// htmlText strips boilerplate and returns the page's visible text.
func htmlText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	root := doc.Find("main, article, #content, .content").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var b strings.Builder
	root.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, div").Each(func(_ int, sel *goquery.Selection) {
		// only leaf-ish nodes: skip containers whose text would duplicate
		// their children's
		if sel.Children().Filter("div, p, li, table").Length() > 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	if b.Len() == 0 {
		// fall back to the whole body's text for pages with exotic markup
		return strings.TrimSpace(root.Text()), nil
	}
	return b.String(), nil
}
