package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/voltio/ramsgen/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, description, scale, work_type, project_info, status, progress, current_step,
	 risk_data, method_data, error_message, generation_metadata, created_at, started_at, completed_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, description, scale, work_type, project_info, status, progress, current_step, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Description, job.Scale, job.WorkType, job.ProjectInfo,
		job.Status, job.Progress, job.CurrentStep, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Description, &j.Scale, &j.WorkType, &j.ProjectInfo,
		&j.Status, &j.Progress, &j.CurrentStep,
		&j.RiskData, &j.MethodData, &j.ErrorMessage, &j.GenerationMetadata,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) GetJobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID, progress int, step string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = $3, current_step = $4, started_at = $5
		 WHERE id = $1 AND status = $6`,
		id, models.JobStatusProcessing, progress, step, now, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id, models.JobStatusProcessing)
	}
	return nil
}

// UpdateProgress is a heartbeat write. It silently does nothing once the job
// leaves processing, so a late tick can never resurrect a terminal row, and
// GREATEST keeps progress monotone under racing tickers.
func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = GREATEST(progress, $2), current_step = $3
		 WHERE id = $1 AND status = $4`,
		id, progress, step, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) CancelJob(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = 0, current_step = 'Cancelled', completed_at = $3
		 WHERE id = $1 AND status IN ($4, $5)`,
		id, models.JobStatusCancelled, now, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id, models.JobStatusCancelled)
	}
	return nil
}

var validTransitions = map[string][]string{
	models.JobStatusQueued: {
		models.JobStatusProcessing,
		models.JobStatusCancelled,
		// A cache hit completes straight from queued.
		models.JobStatusComplete,
		models.JobStatusFailed,
	},
	models.JobStatusProcessing: {
		models.JobStatusComplete,
		models.JobStatusPartial,
		models.JobStatusFailed,
		models.JobStatusCancelled,
	},
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, status string, opts ...JobResultOption) error {
	if !models.IsTerminalStatus(status) {
		return fmt.Errorf("complete job: %q is not a terminal status", status)
	}

	params := NewJobResult(opts...)

	// The terminal write overwrites whatever the last heartbeat wrote.
	progress := 100
	if status == models.JobStatusFailed || status == models.JobStatusCancelled {
		progress = 0
	}

	now := time.Now().UTC()
	fromStatuses := allowedSources(status)
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, progress = $3, current_step = $4,
		   risk_data = $5, method_data = $6, error_message = $7, generation_metadata = $8,
		   completed_at = $9
		 WHERE id = $1 AND status = ANY($10)`,
		id, status, progress, terminalStep(status),
		params.RiskData, params.MethodData, params.ErrorMessage, params.Metadata,
		now, fromStatuses)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id, status)
	}
	return nil
}

// allowedSources returns the statuses from which a transition to target is legal.
func allowedSources(target string) []string {
	var sources []string
	for from, targets := range validTransitions {
		for _, t := range targets {
			if t == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

func terminalStep(status string) string {
	switch status {
	case models.JobStatusComplete:
		return "Complete"
	case models.JobStatusPartial:
		return "Complete with partial results"
	case models.JobStatusCancelled:
		return "Cancelled"
	default:
		return "Failed"
	}
}

// transitionConflict distinguishes a missing row from an illegal transition
// after a guarded UPDATE matched nothing.
func (s *PostgresStore) transitionConflict(ctx context.Context, id uuid.UUID, target string) error {
	current, err := s.GetJobStatus(ctx, id)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(current) {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalState, current, target)
	}
	return fmt.Errorf("invalid job status transition: %s -> %s", current, target)
}

// --- Semantic cache ---

const cacheColumns = `id, description, scale, work_type, risk_data, method_data,
	 hit_count, created_at, last_used_at, expires_at`

func (s *PostgresStore) SearchCacheEntries(ctx context.Context, embedding []float32, scale, workType string, minSimilarity float64, limit int) ([]models.CacheCandidate, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx,
		`SELECT `+cacheColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM semantic_cache
		 WHERE scale = $2 AND work_type = $3 AND expires_at > NOW()
		   AND 1 - (embedding <=> $1) >= $4
		 ORDER BY embedding <=> $1
		 LIMIT $5`,
		vec, scale, workType, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("search cache entries: %w", err)
	}
	defer rows.Close()

	var candidates []models.CacheCandidate
	for rows.Next() {
		var c models.CacheCandidate
		if err := rows.Scan(&c.Entry.ID, &c.Entry.Description, &c.Entry.Scale, &c.Entry.WorkType,
			&c.Entry.RiskData, &c.Entry.MethodData,
			&c.Entry.HitCount, &c.Entry.CreatedAt, &c.Entry.LastUsedAt, &c.Entry.ExpiresAt,
			&c.Similarity); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (s *PostgresStore) InsertCacheEntry(ctx context.Context, entry *models.CacheEntry, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO semantic_cache (id, description, embedding, scale, work_type, risk_data, method_data, hit_count, created_at, last_used_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Description, pgvector.NewVector(embedding), entry.Scale, entry.WorkType,
		entry.RiskData, entry.MethodData, entry.HitCount,
		entry.CreatedAt, entry.LastUsedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchCacheEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE semantic_cache SET hit_count = hit_count + 1, last_used_at = $2 WHERE id = $1`,
		id, now)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
