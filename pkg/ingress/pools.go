package ingress

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
)

func (h *handlers) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.store.ResourcePools().List(r.Context())
	if err != nil {
		writeError(w, r, apperr.Internal("ingress.listPools", err))
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")
	pool, err := h.store.ResourcePools().FindByID(r.Context(), poolID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindNotFound, "ingress.getPool", err))
		return
	}
	writeJSON(w, http.StatusOK, pool)
}
