// Package extract downloads agenda documents and turns them into scored
// UTF-8 text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/engagic/engagic/pkg/models"
	"github.com/engagic/engagic/pkg/vendors"
)

// Quality thresholds: text that misses any one of the three bars is unusable
// for summarisation and is flagged poor without retries (fail-fast; premium
// strategies plug in via Result.Source).
const (
	minChars       = 100
	minLetterRatio = 0.3
	minWords       = 20
)

// Error reports a document that could not be fetched or read at all.
// Partial or garbled text is NOT an Error; it comes back flagged poor.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is one document's extracted text. Source names the strategy that
// produced it so a second-tier extractor (OCR, LLM-over-PDF) can be plugged
// in behind the same type.
type Result struct {
	Text    string
	Quality models.ExtractionQuality
	Source  string
}

// Extractor fetches documents over the shared vendor HTTP client.
type Extractor struct {
	client *vendors.Client
}

// New creates an Extractor.
func New(client *vendors.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract downloads url and extracts text according to its content type.
func (e *Extractor) Extract(ctx context.Context, url string) (*Result, error) {
	body, contentType, err := e.client.Get(ctx, "extractor", url)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	if len(body) == 0 {
		return nil, &Error{URL: url, Err: fmt.Errorf("empty response")}
	}

	var (
		text   string
		source string
	)
	if isPDF(body, contentType) {
		text, err = pdfText(body)
		source = "pdf"
	} else {
		text, err = htmlText(body)
		source = "html"
	}
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	text = normalizeText(text)
	if text == "" {
		return nil, &Error{URL: url, Err: fmt.Errorf("no text recovered")}
	}

	return &Result{
		Text:    text,
		Quality: ScoreQuality(text),
		Source:  source,
	}, nil
}

// ScoreQuality applies the fail-fast quality gate.
func ScoreQuality(text string) models.ExtractionQuality {
	if len(text) < minChars {
		return models.QualityPoor
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if float64(letters)/float64(len([]rune(text))) < minLetterRatio {
		return models.QualityPoor
	}
	if len(strings.Fields(text)) < minWords {
		return models.QualityPoor
	}
	return models.QualityGood
}

func isPDF(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

// pdfText extracts text from every page. Individual unreadable pages are
// skipped; the document only fails when no page yields text.
func pdfText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return b.String(), nil
}

// normalizeText collapses runs of blank lines and strips trailing space.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
