package vendors

import (
	"strings"
	"time"
)

// dateLayouts covers the formats observed across vendor portals. The table
// is explicit on purpose: a guessing parser would silently misread
// ambiguous day/month orders, and an unparseable date must come back nil.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04PM",
	"Jan 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
	"01/02/2006 3:04 PM",
	"01/02/2006 3:04:05 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"2006/01/02",
	"02-Jan-2006",
	"2 January 2006",
	"Jan 2 2006 3:04PM", // Legistar API style
}

// ParseDate parses a vendor-supplied date string against the layout table.
// Returns nil when nothing matches, never a guess. Times are naive local
// when the vendor supplies one, UTC otherwise.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	// common placeholder values seen in the field
	switch strings.ToUpper(s) {
	case "TBD", "TBA", "N/A", "NONE", "PENDING":
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	// some portals append timezone abbreviations the layouts don't carry
	if i := strings.LastIndexAny(s, " "); i > 0 {
		suffix := s[i+1:]
		if len(suffix) >= 2 && len(suffix) <= 4 && suffix == strings.ToUpper(suffix) && !strings.ContainsAny(suffix, "0123456789") {
			return ParseDate(s[:i])
		}
	}
	return nil
}
