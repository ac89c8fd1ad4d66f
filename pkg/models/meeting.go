package models

import "time"

// Meeting is one agenda-bearing event for a city. Either AgendaURL or at
// least one PacketURL is non-empty.
type Meeting struct {
	ID               string           `json:"id"`
	Banana           string           `json:"banana"`
	Title            string           `json:"title"`
	Date             *time.Time       `json:"date,omitempty"`
	AgendaURL        string           `json:"agenda_url,omitempty"`
	PacketURLs       []string         `json:"packet_url,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Participation    *Participation   `json:"participation,omitempty"`
	Status           MeetingStatus    `json:"status"`
	Topics           []string         `json:"topics,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingMethod ProcessingMethod `json:"processing_method,omitempty"`
	ProcessingTimeMS int64            `json:"processing_time_ms,omitempty"`
	HasItems         bool             `json:"has_items"`
	Items            []AgendaItem     `json:"items,omitempty"`
	VendorUpdatedAt  *time.Time       `json:"-"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Participation carries best-effort instructions for joining a meeting.
type Participation struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	VirtualURL string `json:"virtual_url,omitempty"`
	MeetingID  string `json:"meeting_id,omitempty"`
	IsHybrid   bool   `json:"is_hybrid,omitempty"`
}

// HasAgenda reports whether the meeting carries any document to process.
func (m *Meeting) HasAgenda() bool {
	return m.AgendaURL != "" || len(m.PacketURLs) > 0
}
