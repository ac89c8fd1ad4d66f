package models

import "time"

// Matter is a recurring legislative item tracked across meetings. Matters
// outlive their appearances and are never cascade-deleted.
type Matter struct {
	ID               string            `json:"id"`
	Banana           string            `json:"banana"`
	MatterFile       string            `json:"matter_file,omitempty"`
	MatterID         string            `json:"vendor_matter_id,omitempty"`
	Title            string            `json:"title"`
	CanonicalSummary string            `json:"canonical_summary,omitempty"`
	Topics           []string          `json:"topics,omitempty"`
	AttachmentHash   string            `json:"attachment_hash,omitempty"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	AppearanceCount  int               `json:"appearance_count"`
	Status           MatterDisposition `json:"status,omitempty"`
	FinalVoteDate    *time.Time        `json:"final_vote_date,omitempty"`
}

// MatterAppearance is a single occurrence of a matter on a meeting's agenda.
type MatterAppearance struct {
	MatterID  string      `json:"matter_id"`
	MeetingID string      `json:"meeting_id"`
	Date      *time.Time  `json:"date,omitempty"`
	Sequence  int         `json:"sequence"`
	Outcome   VoteOutcome `json:"vote_outcome,omitempty"`
	Tally     *VoteTally  `json:"vote_tally,omitempty"`
}

// VoteTally is the recorded vote breakdown for an appearance.
type VoteTally struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Abstain int `json:"abstain"`
	Absent  int `json:"absent"`
}
