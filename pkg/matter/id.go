// Package matter links recurring legislative items across meetings and
// decides when a cached summary may be reused.
package matter

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/engagic/engagic/pkg/models"
)

// Matter ids are {banana}_{first 16 hex chars of SHA-256}. The hash input is
// a tagged canonical byte string so the three tiers can never collide with
// each other:
//
//	tier 1: "file:"   + TRIM(UPPER(matter_file))
//	tier 2: "vendor:" + TRIM(matter_id)
//	tier 3: "title:"  + normalized title
//
// The banana prefix scopes every id; the same matter_file in two cities
// yields two distinct matters.

const idHashLen = 16

// minTitleLen is the shortest normalised title eligible for tier-3 ids.
// Shorter titles are too generic to track.
const minTitleLen = 30

// readingPrefix strips procedural prefixes so "FIRST READING: X" and
// "SECOND READING: X" resolve to the same matter. District prefixes
// ("District 3:") are intentionally left alone: collapsing distinct district
// items is worse than tracking a duplicate.
var readingPrefix = regexp.MustCompile(`(?i)^\s*(?:(?:first|second|third|1st|2nd|3rd)\s+(?:reading|read)\s*[:\-–]?|reintroduced\b[:\-–]?|re-?referred\b[:\-–]?|substitute\b[:\-–]?)\s*`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// excludedTitles are vendor-independent procedural items that never form a
// matter; they recur on every agenda without being legislation.
var excludedTitles = map[string]bool{
	"public comment":       true,
	"public comments":      true,
	"staff comments":       true,
	"staff report":         true,
	"closed session":       true,
	"open forum":           true,
	"roll call":            true,
	"call to order":        true,
	"adjournment":          true,
	"approval of minutes":  true,
	"consent calendar":     true,
	"pledge of allegiance": true,
	"announcements":        true,
}

// GenerateID derives the composite matter id via the three-tier fallback.
// Returns "" when no tier applies; such items are always treated as unique.
func GenerateID(banana, matterFile, matterID, title string) string {
	if f := strings.ToUpper(strings.TrimSpace(matterFile)); f != "" {
		return banana + "_" + hashID("file:"+f)
	}
	if v := strings.TrimSpace(matterID); v != "" {
		return banana + "_" + hashID("vendor:"+v)
	}
	norm := NormalizeTitle(title)
	if len(norm) < minTitleLen || excludedTitles[norm] {
		return ""
	}
	return banana + "_" + hashID("title:"+norm)
}

// NormalizeTitle canonicalises a title for tier-3 id generation: strip
// reading prefixes repeatedly, collapse whitespace, lowercase.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	for {
		stripped := readingPrefix.ReplaceAllString(t, "")
		if stripped == t {
			break
		}
		t = stripped
	}
	t = whitespaceRun.ReplaceAllString(t, " ")
	return strings.ToLower(strings.TrimSpace(t))
}

// IsExcludedTitle reports whether a normalised title is on the procedural
// exclusion list.
func IsExcludedTitle(normalized string) bool {
	return excludedTitles[normalized]
}

// AttachmentHash computes the content address of an item's attachments:
// SHA-256 over the sorted attachment URLs joined by newlines. Attachment
// content changes always change the vendor URL on every platform we track,
// so hashing URLs approximates hashing content without the downloads.
func AttachmentHash(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	urls := make([]string, 0, len(attachments))
	for _, a := range attachments {
		if a.URL != "" {
			urls = append(urls, a.URL)
		}
	}
	if len(urls) == 0 {
		return ""
	}
	sort.Strings(urls)
	sum := sha256.Sum256([]byte(strings.Join(urls, "\n")))
	return hex.EncodeToString(sum[:])
}

func hashID(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:idHashLen]
}
