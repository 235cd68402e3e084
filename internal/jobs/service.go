// Package jobs is the application service behind the HTTP handlers: it
// creates job records, dispatches runner invocations, and answers polls.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltio/ramsgen/internal/cache"
	"github.com/voltio/ramsgen/internal/store"
	"github.com/voltio/ramsgen/pkg/models"
)

// DefaultWorkType tags jobs whose callers did not classify the work.
const DefaultWorkType = "general"

const jobStateTTL = 24 * time.Hour

// JobRunner executes one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// SubmitParams is a validated job submission.
type SubmitParams struct {
	Description string
	Scale       string
	WorkType    string
	ProjectInfo models.ProjectInfo
}

// Service owns the job lifecycle from submission to cancellation.
type Service struct {
	store  store.Store
	states cache.Cache
	runner JobRunner
	logger *slog.Logger
}

// New creates a Service.
func New(st store.Store, states cache.Cache, runner JobRunner, logger *slog.Logger) *Service {
	return &Service{store: st, states: states, runner: runner, logger: logger}
}

// Submit persists a queued job and dispatches a runner invocation in the
// background. The returned job is the caller's polling handle; generation
// outlives the submission request.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (*models.Job, error) {
	workType := params.WorkType
	if workType == "" {
		workType = DefaultWorkType
	}

	job := &models.Job{
		ID:          uuid.New(),
		Description: params.Description,
		Scale:       params.Scale,
		WorkType:    workType,
		ProjectInfo: params.ProjectInfo,
		Status:      models.JobStatusQueued,
		Progress:    0,
		CurrentStep: "Queued",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.mirrorState(ctx, job.ID, models.JobStatusQueued, 0, "Queued")

	go func() {
		// Detached from the request context so generation survives the
		// submitter disconnecting.
		if err := s.runner.Run(context.Background(), job.ID); err != nil {
			s.logger.Error("job run failed", "job_id", job.ID, "error", err)
		}
	}()

	s.logger.Info("job submitted", "job_id", job.ID, "scale", job.Scale, "work_type", job.WorkType)
	return job, nil
}

// Get returns the full job record.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// StatusView is the lightweight polling view of a job. It carries just enough
// for a progress bar; terminal documents are fetched via Get.
type StatusView struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step"`
}

// Status answers a poll from the Redis mirror when it has the job, falling
// back to Postgres on a miss or a mirror outage. Pollers hammer this between
// heartbeats; the mirror keeps that traffic off the jobs table.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (StatusView, error) {
	state, ok, err := s.states.GetJobState(ctx, id)
	if err != nil {
		s.logger.Warn("job state mirror read failed, falling back to store", "job_id", id, "error", err)
	} else if ok {
		return StatusView{
			ID:          id,
			Status:      state.Status,
			Progress:    state.Progress,
			CurrentStep: state.CurrentStep,
		}, nil
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{
		ID:          job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
	}, nil
}

// Cancel flips a queued or processing job to cancelled. Returns
// store.ErrTerminalState when the job already finished.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if err := s.store.CancelJob(ctx, id); err != nil {
		return err
	}
	s.mirrorState(ctx, id, models.JobStatusCancelled, 0, "Cancelled")
	s.logger.Info("job cancelled", "job_id", id)
	return nil
}

func (s *Service) mirrorState(ctx context.Context, id uuid.UUID, status string, progress int, step string) {
	state := cache.JobState{Status: status, Progress: progress, CurrentStep: step}
	if err := s.states.SetJobState(ctx, id, state, jobStateTTL); err != nil {
		s.logger.Warn("failed to mirror job state", "job_id", id, "error", err)
	}
}
