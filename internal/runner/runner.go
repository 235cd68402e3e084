// Package runner drives one generation job from queued to a terminal state.
// A runner invocation owns exactly one job; concurrency lives inside the
// invocation (agent calls, heartbeats), never across jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/voltio/ramsgen/internal/cache"
	"github.com/voltio/ramsgen/internal/orchestrator"
	"github.com/voltio/ramsgen/internal/semcache"
	"github.com/voltio/ramsgen/internal/store"
	"github.com/voltio/ramsgen/internal/transform"
	"github.com/voltio/ramsgen/pkg/models"
)

// jobStateTTL bounds how long the Redis status mirror outlives its job.
const jobStateTTL = 24 * time.Hour

// cacheStoreTimeout bounds the detached write-through after completion.
const cacheStoreTimeout = 30 * time.Second

// Orchestrator runs both generation agents and settles both outcomes.
type Orchestrator interface {
	Run(ctx context.Context, req models.AgentRequest) (orchestrator.RiskOutcome, orchestrator.MethodOutcome)
}

// SemanticCache is the result cache consulted before and written after a run.
type SemanticCache interface {
	Lookup(ctx context.Context, description, scale, workType string) (semcache.Result, error)
	Store(ctx context.Context, description, scale, workType string, riskData *models.RiskDocument, methodData *models.MethodDocument)
}

// Runner executes generation jobs.
type Runner struct {
	store             store.Store
	states            cache.Cache
	semcache          SemanticCache
	orch              Orchestrator
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// New creates a Runner.
func New(st store.Store, states cache.Cache, sc SemanticCache, orch Orchestrator, heartbeatInterval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		store:             st,
		states:            states,
		semcache:          sc,
		orch:              orch,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// Run drives the job with the given id to a terminal state. Only job-record
// load/write failures are returned; agent, cache and transform failures end
// up in the job's terminal error_message instead. Run is idempotent for jobs
// that already reached a terminal state.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (err error) {
	logger := r.logger.With("job_id", jobID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("runner panicked", "panic", p, "stack", string(debug.Stack()))
			err = r.finish(context.Background(), logger, jobID, models.JobStatusFailed,
				store.WithErrorMessage(fmt.Sprintf("internal error: %v", p)))
		}
	}()

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	if models.IsTerminalStatus(job.Status) {
		logger.Info("job already terminal, nothing to do", "status", job.Status)
		return nil
	}

	// Cache outages never block generation: any lookup error is a miss.
	hit, err := r.semcache.Lookup(ctx, job.Description, job.Scale, job.WorkType)
	if err != nil {
		logger.Warn("cache lookup failed, treating as miss", "error", err)
	} else if hit.Hit {
		return r.finish(ctx, logger, jobID, models.JobStatusComplete,
			store.WithRiskData(hit.RiskData),
			store.WithMethodData(hit.MethodData),
			store.WithMetadata(models.GenerationMetadata{
				CacheHit:   true,
				Similarity: hit.Similarity,
				HitCount:   hit.HitCount,
			}))
	}

	if err := r.store.MarkProcessing(ctx, jobID, 5, "Analysing job description"); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			logger.Info("job cancelled before processing started")
			return nil
		}
		return fmt.Errorf("marking processing: %w", err)
	}
	r.mirrorState(ctx, jobID, models.JobStatusProcessing, 5, "Analysing job description")

	if cancelled, err := r.isCancelled(ctx, jobID); err != nil {
		return err
	} else if cancelled {
		logger.Info("job cancelled before orchestration")
		return nil
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stopHeartbeats := r.startHeartbeats(runCtx, cancelRun, jobID)
	riskOut, methodOut := r.orch.Run(runCtx, models.AgentRequest{
		JobID:       job.ID,
		Description: job.Description,
		Scale:       job.Scale,
		ProjectInfo: job.ProjectInfo,
	})
	stopHeartbeats()

	// A cancellation observed here means the user gave up while agents were
	// in flight. The results are discarded, not persisted.
	if cancelled, err := r.isCancelled(ctx, jobID); err != nil {
		return err
	} else if cancelled {
		logger.Info("job cancelled during orchestration, discarding results")
		return nil
	}

	now := time.Now().UTC()

	var riskDoc *models.RiskDocument
	riskReason := riskOut.Reason
	if riskOut.OK() {
		doc, terr := transform.Risk(riskOut.Data, job.ProjectInfo, now)
		if terr != nil {
			logger.Warn("risk transform failed", "error", terr)
			riskReason = terr.Error()
		} else {
			riskDoc = doc
		}
	}

	var methodDoc *models.MethodDocument
	methodReason := methodOut.Reason
	if methodOut.OK() {
		doc, terr := transform.Method(methodOut.Data, job.ProjectInfo, now)
		if terr != nil {
			logger.Warn("method transform failed", "error", terr)
			methodReason = terr.Error()
		} else {
			methodDoc = doc
		}
	}

	transform.Merge(riskDoc, methodDoc)

	switch {
	case riskDoc != nil && methodDoc != nil:
		if err := r.finish(ctx, logger, jobID, models.JobStatusComplete,
			store.WithRiskData(riskDoc),
			store.WithMethodData(methodDoc),
			store.WithMetadata(models.GenerationMetadata{CacheHit: false})); err != nil {
			return err
		}
		// Write-through is detached from the request lifetime so a slow
		// embedding call cannot hold the runner open.
		go func() {
			storeCtx, cancel := context.WithTimeout(context.Background(), cacheStoreTimeout)
			defer cancel()
			r.semcache.Store(storeCtx, job.Description, job.Scale, job.WorkType, riskDoc, methodDoc)
		}()
		return nil

	case riskDoc != nil:
		return r.finish(ctx, logger, jobID, models.JobStatusPartial,
			store.WithRiskData(riskDoc),
			store.WithErrorMessage("method agent: "+methodReason))

	case methodDoc != nil:
		return r.finish(ctx, logger, jobID, models.JobStatusPartial,
			store.WithMethodData(methodDoc),
			store.WithErrorMessage("risk agent: "+riskReason))

	default:
		return r.finish(ctx, logger, jobID, models.JobStatusFailed,
			store.WithErrorMessage(fmt.Sprintf("risk agent: %s; method agent: %s", riskReason, methodReason)))
	}
}

// finish writes the terminal state and mirrors it to Redis. Losing the write
// race to an external cancellation is not an error.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, status string, opts ...store.JobResultOption) error {
	if err := r.store.CompleteJob(ctx, jobID, status, opts...); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			logger.Info("job reached a terminal state concurrently, result discarded", "status", status)
			return nil
		}
		return fmt.Errorf("completing job: %w", err)
	}

	progress := 100
	if status == models.JobStatusFailed || status == models.JobStatusCancelled {
		progress = 0
	}
	r.mirrorState(ctx, jobID, status, progress, terminalStep(status))

	logger.Info("job finished", "status", status)
	return nil
}

func (r *Runner) isCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	status, err := r.store.GetJobStatus(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("checking job status: %w", err)
	}
	return status == models.JobStatusCancelled, nil
}

// mirrorState copies status into Redis for cheap polling. Postgres is the
// source of truth; a failed mirror is logged and forgotten.
func (r *Runner) mirrorState(ctx context.Context, jobID uuid.UUID, status string, progress int, step string) {
	state := cache.JobState{Status: status, Progress: progress, CurrentStep: step}
	if err := r.states.SetJobState(ctx, jobID, state, jobStateTTL); err != nil {
		r.logger.Warn("failed to mirror job state", "job_id", jobID, "error", err)
	}
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
