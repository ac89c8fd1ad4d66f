package models

import "time"

// QueueJob is one durable unit of work. (kind, payload) is unique among
// pending rows.
type QueueJob struct {
	ID          int64      `json:"id"`
	Kind        JobKind    `json:"kind"`
	Payload     string     `json:"payload"`
	Priority    int        `json:"priority"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	RunAfter    *time.Time `json:"run_after,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// QueueStats is a point-in-time snapshot of queue depth by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	DeadLetter int `json:"dead_letter"`
}

// CacheEntry is a content-addressed processing result. The hash covers the
// extracted text, so identical packets never hit the LLM twice.
type CacheEntry struct {
	ContentHash  string    `json:"content_hash"`
	Summary      string    `json:"summary"`
	Topics       []string  `json:"topics"`
	Method       string    `json:"method"`
	CostCents    int       `json:"cost_cents"`
	Hits         int       `json:"hits"`
	LastAccessed time.Time `json:"last_accessed"`
}
