package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/voltio/ramsgen/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrTerminalState is returned when a write targets a job that has already
// reached a terminal status. Terminal rows are immutable.
var ErrTerminalState = errors.New("job is in a terminal state")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// GetJobStatus is the cheap poll used for cancellation checks.
	GetJobStatus(ctx context.Context, id uuid.UUID) (string, error)
	// MarkProcessing transitions queued -> processing and stamps started_at.
	MarkProcessing(ctx context.Context, id uuid.UUID, progress int, step string) error
	// UpdateProgress is the heartbeat write: progress only ever rises
	// (GREATEST in SQL) and only applies while the job is processing.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, step string) error
	// CancelJob flips a queued or processing job to cancelled. Returns
	// ErrTerminalState if the job already finished.
	CancelJob(ctx context.Context, id uuid.UUID) error
	// CompleteJob writes a terminal status. Progress is forced to 100 for
	// complete/partial and 0 for failed; completed_at is stamped.
	CompleteJob(ctx context.Context, id uuid.UUID, status string, opts ...JobResultOption) error

	SearchCacheEntries(ctx context.Context, embedding []float32, scale, workType string, minSimilarity float64, limit int) ([]models.CacheCandidate, error)
	InsertCacheEntry(ctx context.Context, entry *models.CacheEntry, embedding []float32) error
	// TouchCacheEntry increments hit_count and refreshes last_used_at.
	TouchCacheEntry(ctx context.Context, id uuid.UUID, now time.Time) error
}

// JobResult collects the optional payload of a terminal write.
type JobResult struct {
	RiskData     *models.RiskDocument
	MethodData   *models.MethodDocument
	ErrorMessage *string
	Metadata     *models.GenerationMetadata
}

// NewJobResult applies opts to an empty JobResult.
func NewJobResult(opts ...JobResultOption) JobResult {
	var r JobResult
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

type JobResultOption func(*JobResult)

func WithRiskData(doc *models.RiskDocument) JobResultOption {
	return func(r *JobResult) {
		r.RiskData = doc
	}
}

func WithMethodData(doc *models.MethodDocument) JobResultOption {
	return func(r *JobResult) {
		r.MethodData = doc
	}
}

func WithErrorMessage(msg string) JobResultOption {
	return func(r *JobResult) {
		r.ErrorMessage = &msg
	}
}

func WithMetadata(meta models.GenerationMetadata) JobResultOption {
	return func(r *JobResult) {
		r.Metadata = &meta
	}
}
