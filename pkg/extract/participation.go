package extract

import (
	"regexp"
	"strings"

	"github.com/engagic/engagic/pkg/models"
)

// Agendas bury their participation instructions in free text; these
// patterns pull out the contact points residents actually need.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
	zoomPattern  = regexp.MustCompile(`https?://[a-zA-Z0-9.\-]*(?:zoom\.us|webex\.com|teams\.microsoft\.com|youtube\.com|youtu\.be)/[^\s<>"')]+`)
	// meeting id lines like "Webinar ID: 832 1234 5678" or "Meeting ID: 123-456-789"
	meetingIDPattern = regexp.MustCompile(`(?i)(?:webinar|meeting)\s+id:?\s*([\d\s\-]{9,15})`)
)

// ParseParticipation scans extracted agenda text for contact points.
// Returns nil when nothing is found.
func ParseParticipation(text string) *models.Participation {
	// participation blocks live near the top of the agenda; scanning the
	// whole packet would pick up staff contacts from attachments
	head := text
	if len(head) > 6000 {
		head = head[:6000]
	}

	p := &models.Participation{}
	if m := emailPattern.FindString(head); m != "" {
		p.Email = m
	}
	if m := phonePattern.FindString(head); m != "" {
		p.Phone = strings.TrimSpace(m)
	}
	if m := zoomPattern.FindString(head); m != "" {
		p.VirtualURL = strings.TrimRight(m, ".,;")
	}
	if m := meetingIDPattern.FindStringSubmatch(head); m != nil {
		p.MeetingID = strings.TrimSpace(m[1])
	}

	if p.Email == "" && p.Phone == "" && p.VirtualURL == "" && p.MeetingID == "" {
		return nil
	}

	lower := strings.ToLower(head)
	p.IsHybrid = p.VirtualURL != "" &&
		(strings.Contains(lower, "in person") || strings.Contains(lower, "in-person") ||
			strings.Contains(lower, "council chambers") || strings.Contains(lower, "hybrid"))
	return p
}
