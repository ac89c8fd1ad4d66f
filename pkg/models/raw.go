package models

import "time"

// RawMeeting is the canonical record an adapter yields for one meeting.
// Adapters never return partially-constructed records: a meeting missing its
// vendor id or every document URL is skipped at the adapter.
type RawMeeting struct {
	VendorMeetingID string
	Title           string
	// Date is timezone-naive local time when the vendor supplies one, UTC
	// otherwise. Nil when the vendor publishes no parseable date.
	Date          *time.Time
	AgendaURL     string
	PacketURLs    []string
	Participation *Participation
	Status        MeetingStatus
	UpdatedAt     *time.Time
	Items         []RawAgendaItem
}

// RawAgendaItem is one agenda line as the vendor exposes it.
type RawAgendaItem struct {
	Title       string
	Sequence    int
	MatterFile  string
	MatterID    string
	Attachments []Attachment
	Sponsors    []Sponsor
	Votes       []RawVote
}

// RawVote is a recorded vote action on an agenda item. Only vendors that
// expose vote records populate it (Legistar).
type RawVote struct {
	Action  string
	Date    *time.Time
	Outcome VoteOutcome
	Tally   *VoteTally
}
