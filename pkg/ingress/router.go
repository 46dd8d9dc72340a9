// Package ingress implements the thin admin HTTP surface (§6): a go-chi
// router exposing job submission/inspection, pool listing and execution
// lookup over the core's existing ports (queue, storage, coordinator). It
// carries no authentication or TLS termination of its own — those are the
// responsibility of whatever fronts this router in a real deployment.
package ingress

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
)

// Deps wires the router to its collaborators. Queue admits newly submitted
// jobs; Store answers reads and persists the Job before admission; Cancel,
// when non-nil, is invoked by DELETE /v1/jobs/{id} (typically
// coordinator.Coordinator.CancelJob).
type Deps struct {
	Queue  *queue.Queue
	Store  storage.Store
	Cancel func(ctx context.Context, jobID string) error
}

// NewRouter builds the admin API's chi.Mux. Handlers write the §6 error
// envelope on failure instead of chi's default plaintext responses.
func NewRouter(deps Deps) *chi.Mux {
	logger := log.WithComponent("ingress")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{store: deps.Store, queue: deps.Queue, cancel: deps.Cancel}

	r.Get("/healthz", h.healthz)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", h.submitJob)
		r.Get("/", h.listJobs)
		r.Get("/{jobID}", h.getJob)
		r.Delete("/{jobID}", h.cancelJob)
	})

	r.Route("/v1/pools", func(r chi.Router) {
		r.Get("/", h.listPools)
		r.Get("/{poolID}", h.getPool)
	})

	r.Route("/v1/executions", func(r chi.Router) {
		r.Get("/{executionID}", h.getExecution)
		r.Get("/by-job/{jobID}", h.listExecutionsByJob)
	})

	return r
}

// requestLogger emits one structured line per request in the teacher's
// zerolog idiom, tagged with chi's request id.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request handled")
		})
	}
}
