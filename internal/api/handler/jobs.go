// Package handler contains the HTTP handlers for the jobs API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/voltio/ramsgen/internal/api/response"
	"github.com/voltio/ramsgen/internal/jobs"
	"github.com/voltio/ramsgen/internal/store"
	"github.com/voltio/ramsgen/pkg/models"
)

// maxDescriptionChars caps submissions; longer descriptions degrade both the
// embedding and the agents.
const maxDescriptionChars = 1000

// JobService defines the interface the job handlers depend on.
type JobService interface {
	Submit(ctx context.Context, params jobs.SubmitParams) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Status(ctx context.Context, id uuid.UUID) (jobs.StatusView, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Accepted submissions return 202 with the queued job as the polling handle.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Description string             `json:"description"`
			Scale       string             `json:"scale"`
			WorkType    string             `json:"work_type"`
			ProjectInfo models.ProjectInfo `json:"project_info"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Description == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "description is required", nil)
			return
		}
		if len(req.Description) > maxDescriptionChars {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"description must be at most 1000 characters", nil)
			return
		}
		if req.Scale == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "scale is required", nil)
			return
		}

		job, err := svc.Submit(r.Context(), jobs.SubmitParams{
			Description: req.Description,
			Scale:       req.Scale,
			WorkType:    req.WorkType,
			ProjectInfo: req.ProjectInfo,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create job", nil)
			return
		}

		response.Accepted(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewGetJobStatusHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/status, the polling endpoint. Unlike the full job
// fetch it is normally served from the Redis mirror, not Postgres.
func NewGetJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		view, err := svc.Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, view)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/cancel. Cancelling a finished job is a conflict,
// not an idempotent success: the caller's view of the job is stale.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			case errors.Is(err, store.ErrTerminalState):
				response.Error(w, http.StatusConflict, "JOB_ALREADY_FINISHED",
					"Job has already reached a terminal state", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, map[string]string{
			"id":     id.String(),
			"status": models.JobStatusCancelled,
		})
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
