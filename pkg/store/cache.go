package store

import (
	"context"
	"encoding/json"

	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/models"
)

// CacheRepo is the content-addressed processing cache. Keys are SHA-256
// hashes of extracted text, so identical packets are summarised once.
type CacheRepo struct{}

// NewCacheRepo creates a CacheRepo.
func NewCacheRepo() *CacheRepo { return &CacheRepo{} }

// Get returns the cached entry for a content hash, bumping its hit count and
// last-accessed time. Returns ErrNotFound on a miss.
func (r *CacheRepo) Get(ctx context.Context, q database.Querier, contentHash string) (*models.CacheEntry, error) {
	row := q.QueryRow(ctx, `
		UPDATE cache SET hits = hits + 1, last_accessed = now()
		WHERE content_hash = $1
		RETURNING content_hash, summary, topics, method, cost_cents, hits, last_accessed`,
		contentHash)

	var (
		e          models.CacheEntry
		topicsJSON []byte
	)
	err := row.Scan(&e.ContentHash, &e.Summary, &topicsJSON, &e.Method,
		&e.CostCents, &e.Hits, &e.LastAccessed)
	if err != nil {
		return nil, dbErr("cache get", err)
	}
	if len(topicsJSON) > 0 {
		if err := json.Unmarshal(topicsJSON, &e.Topics); err != nil {
			return nil, dbErr("decode cache topics", err)
		}
	}
	return &e, nil
}

// Put stores a processing result under its content hash.
func (r *CacheRepo) Put(ctx context.Context, q database.Querier, e *models.CacheEntry) error {
	if e.ContentHash == "" {
		return models.NewValidationError("content_hash", "required")
	}
	topicsJSON, err := json.Marshal(topicsOrEmpty(e.Topics))
	if err != nil {
		return dbErr("encode cache topics", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO cache (content_hash, summary, topics, method, cost_cents)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO UPDATE SET
			summary = EXCLUDED.summary,
			topics = EXCLUDED.topics,
			method = EXCLUDED.method,
			cost_cents = EXCLUDED.cost_cents`,
		e.ContentHash, e.Summary, topicsJSON, e.Method, e.CostCents)
	if err != nil {
		return dbErr("cache put", err)
	}
	return nil
}

func topicsOrEmpty(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
