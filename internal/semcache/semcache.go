// Package semcache is the similarity-indexed result cache. A lookup embeds
// the job description, pre-filters stored entries by vector similarity plus
// exact tag match, then re-scores the survivors with a blend of vector
// similarity and literal word overlap.
//
// Pure vector similarity over-matches jobs that read alike but differ
// operationally (voltage, scale). The lexical component penalizes near-miss
// paraphrases while the embedding component still lets synonyms match. A
// false hit silently hands a caller another job's plan, so both thresholds
// trade recall for precision.
package semcache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voltio/ramsgen/internal/config"
	"github.com/voltio/ramsgen/internal/embedding"
	"github.com/voltio/ramsgen/pkg/models"
)

// Backend is the slice of the store the cache needs.
type Backend interface {
	SearchCacheEntries(ctx context.Context, embedding []float32, scale, workType string, minSimilarity float64, limit int) ([]models.CacheCandidate, error)
	InsertCacheEntry(ctx context.Context, entry *models.CacheEntry, embedding []float32) error
	TouchCacheEntry(ctx context.Context, id uuid.UUID, now time.Time) error
}

// Result is the outcome of a cache lookup.
type Result struct {
	Hit        bool
	RiskData   *models.RiskDocument
	MethodData *models.MethodDocument
	Similarity float64
	HitCount   int
}

// Cache looks up and stores generated documents keyed by description embedding.
type Cache struct {
	backend  Backend
	embedder embedding.Client
	cfg      config.CacheConfig
	logger   *slog.Logger
}

// New creates a Cache.
func New(backend Backend, embedder embedding.Client, cfg config.CacheConfig, logger *slog.Logger) *Cache {
	return &Cache{backend: backend, embedder: embedder, cfg: cfg, logger: logger}
}

// Lookup reports whether a previously completed job is close enough to serve
// for description. An error means the lookup could not run; callers are
// expected to fail open and treat that as a miss.
func (c *Cache) Lookup(ctx context.Context, description, scale, workType string) (Result, error) {
	vector, err := c.embedder.Embed(ctx, description)
	if err != nil {
		return Result{}, err
	}

	candidates, err := c.backend.SearchCacheEntries(ctx, vector, scale, workType,
		c.cfg.PrefilterThreshold, c.cfg.MaxCandidates)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, nil
	}

	best, bestScore := candidates[0], -1.0
	for _, cand := range candidates {
		score := c.cfg.VectorWeight*cand.Similarity +
			c.cfg.LexicalWeight*lexicalOverlap(description, cand.Entry.Description)
		if score > bestScore {
			best, bestScore = cand, score
		}
	}

	if bestScore < c.cfg.AcceptThreshold {
		c.logger.Debug("semantic cache miss",
			"best_score", bestScore, "candidates", len(candidates))
		return Result{}, nil
	}

	// Counter updates are best-effort: a failed touch must not turn an
	// accepted hit into a miss.
	newHitCount := best.Entry.HitCount + 1
	if err := c.backend.TouchCacheEntry(ctx, best.Entry.ID, time.Now().UTC()); err != nil {
		c.logger.Warn("failed to touch cache entry", "entry_id", best.Entry.ID, "error", err)
		newHitCount = best.Entry.HitCount
	}

	c.logger.Info("semantic cache hit",
		"entry_id", best.Entry.ID,
		"similarity", best.Similarity,
		"combined_score", bestScore,
		"hit_count", newHitCount)

	return Result{
		Hit:        true,
		RiskData:   best.Entry.RiskData,
		MethodData: best.Entry.MethodData,
		Similarity: best.Similarity,
		HitCount:   newHitCount,
	}, nil
}

// Store writes a completed job's documents into the cache. Caching is an
// optimization, not a correctness requirement: every failure is logged and
// swallowed, never surfaced to the caller.
func (c *Cache) Store(ctx context.Context, description, scale, workType string, riskData *models.RiskDocument, methodData *models.MethodDocument) {
	vector, err := c.embedder.Embed(ctx, description)
	if err != nil {
		c.logger.Warn("cache store skipped: embedding failed", "error", err)
		return
	}

	now := time.Now().UTC()
	entry := &models.CacheEntry{
		ID:          uuid.New(),
		Description: description,
		Scale:       scale,
		WorkType:    workType,
		RiskData:    riskData,
		MethodData:  methodData,
		HitCount:    0,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(c.cfg.TTL),
	}
	if err := c.backend.InsertCacheEntry(ctx, entry, vector); err != nil {
		c.logger.Warn("cache store failed", "error", err)
		return
	}

	c.logger.Info("cached generation result", "entry_id", entry.ID, "expires_at", entry.ExpiresAt)
}

// lexicalOverlap is the fraction of whitespace-tokenized words in query that
// also appear in stored, case-insensitive, no stemming.
func lexicalOverlap(query, stored string) float64 {
	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 {
		return 0
	}

	storedWords := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(stored)) {
		storedWords[w] = struct{}{}
	}

	matched := 0
	for _, w := range queryWords {
		if _, ok := storedWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}
