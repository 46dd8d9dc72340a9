package ingress

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
)

func (h *handlers) getExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	exec, err := h.store.Executions().FindByID(r.Context(), executionID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindNotFound, "ingress.getExecution", err))
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *handlers) listExecutionsByJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	execs, err := h.store.Executions().ListByJobID(r.Context(), jobID)
	if err != nil {
		writeError(w, r, apperr.Internal("ingress.listExecutionsByJob", err))
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
