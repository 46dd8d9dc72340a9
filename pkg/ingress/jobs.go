package ingress

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

type handlers struct {
	store  storage.Store
	queue  *queue.Queue
	cancel func(ctx context.Context, jobID string) error
}

// submitJobRequest is the §3 Job creation payload: a caller supplies
// content, priority, retry policy and resource requirements; identity and
// lifecycle fields are assigned here.
type submitJobRequest struct {
	Name         string                      `json:"name"`
	Content      types.JobContent            `json:"content"`
	Parameters   map[string]string           `json:"parameters,omitempty"`
	TargetPoolID string                      `json:"targetPoolId,omitempty"`
	Priority     int                         `json:"priority,omitempty"`
	Retry        types.RetryPolicy           `json:"retry,omitempty"`
	Labels       map[string]string           `json:"labels,omitempty"`
	Requirements types.ResourceRequirements  `json:"requirements"`
}

func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Name == "" {
		writeError(w, r, apperr.Validation("ingress.submitJob", "name is required"))
		return
	}
	if req.Priority == 0 {
		req.Priority = types.DefaultPriority
	}

	now := ids.Now()
	job := types.Job{
		ID:           ids.Job(),
		Name:         req.Name,
		Content:      req.Content,
		Parameters:   req.Parameters,
		TargetPoolID: req.TargetPoolID,
		Priority:     req.Priority,
		Retry:        req.Retry,
		Labels:       req.Labels,
		Metadata:     types.JobMetadata{CreatedAt: now, UpdatedAt: now},
		Status:       types.JobQueued,
	}

	if err := h.store.Jobs().Save(r.Context(), job); err != nil {
		writeError(w, r, apperr.Internal("ingress.submitJob", err))
		return
	}

	result := h.queue.Enqueue(job, req.Requirements)
	switch result.Outcome {
	case queue.OutcomeQueueFull:
		writeError(w, r, apperr.BusinessRule("ingress.submitJob", "queue is at capacity"))
		return
	case queue.OutcomeAlreadyQueued:
		writeError(w, r, apperr.Conflict("ingress.submitJob", "job is already queued"))
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.store.Jobs().FindByID(r.Context(), jobID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindNotFound, "ingress.getJob", err))
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	var (
		jobs []types.Job
		err  error
	)
	if status != "" {
		jobs, err = h.store.Jobs().ListByStatus(r.Context(), types.JobStatus(status))
	} else {
		jobs, err = h.store.Jobs().List(r.Context())
	}
	if err != nil {
		writeError(w, r, apperr.Internal("ingress.listJobs", err))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if h.cancel == nil {
		writeError(w, r, apperr.New(apperr.KindInternal, "ingress.cancelJob", "cancellation is not wired"))
		return
	}
	if err := h.cancel(r.Context(), jobID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
