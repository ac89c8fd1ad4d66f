package models

import "time"

// AgendaItem is one line of a meeting's agenda.
type AgendaItem struct {
	ID         string       `json:"id"`
	MeetingID  string       `json:"meeting_id"`
	Title      string       `json:"title"`
	Sequence   int          `json:"sequence"`
	Attachment []Attachment `json:"attachments,omitempty"`
	Sponsors   []Sponsor    `json:"sponsors,omitempty"`
	// MatterID is the composite matter id ({banana}_{16hex}); empty when the
	// item is not trackable.
	MatterID   string    `json:"matter_id,omitempty"`
	MatterFile string    `json:"matter_file,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Topics     []string  `json:"topics,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment is a downloadable document referenced by an item or meeting.
// Unknown types are preserved with Type "unknown".
type Attachment struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Type   string `json:"type"`
	MetaID string `json:"meta_id,omitempty"`
}

// Sponsor is a council-member reference attached to an item.
type Sponsor struct {
	Name     string `json:"name"`
	District string `json:"district,omitempty"`
}
