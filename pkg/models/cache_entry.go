package models

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is one row of the semantic cache: the embedding of a completed
// job's description plus its generated documents. The payload is write-once;
// only HitCount and LastUsedAt mutate after creation.
type CacheEntry struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Description string    `db:"description" json:"description"`
	Scale       string    `db:"scale"       json:"scale"`
	WorkType    string    `db:"work_type"   json:"work_type"`

	RiskData   *RiskDocument   `db:"risk_data"   json:"risk_data"`
	MethodData *MethodDocument `db:"method_data" json:"method_data"`

	HitCount   int       `db:"hit_count"    json:"hit_count"`
	CreatedAt  time.Time `db:"created_at"   json:"created_at"`
	LastUsedAt time.Time `db:"last_used_at" json:"last_used_at"`
	ExpiresAt  time.Time `db:"expires_at"   json:"expires_at"`
}

// CacheCandidate is a cache entry returned by a similarity search together
// with its cosine similarity to the query embedding.
type CacheCandidate struct {
	Entry      CacheEntry
	Similarity float64
}
