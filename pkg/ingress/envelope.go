package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
)

// errorEnvelope is the §6 admin API error shape: {code, message, timestamp,
// traceId}. code mirrors the apperr.Kind that produced the response.
type errorEnvelope struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
	TraceID   string    `json:"traceId"`
}

// statusFor maps an apperr.Kind to the HTTP status this admin API responds
// with; unrecognized or non-apperr errors are Internal.
func statusFor(err error) (apperr.Kind, int) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return apperr.KindInternal, http.StatusInternalServerError
	}
	switch kind {
	case apperr.KindValidation:
		return kind, http.StatusBadRequest
	case apperr.KindNotFound:
		return kind, http.StatusNotFound
	case apperr.KindConflict:
		return kind, http.StatusConflict
	case apperr.KindBusinessRule:
		return kind, http.StatusUnprocessableEntity
	case apperr.KindProvisioning, apperr.KindTransport:
		return kind, http.StatusServiceUnavailable
	case apperr.KindIntegrity:
		return kind, http.StatusUnprocessableEntity
	default:
		return apperr.KindInternal, http.StatusInternalServerError
	}
}

// writeError renders err as the standard error envelope, deriving traceId
// from chi's request-id middleware when present.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := statusFor(err)
	traceID := middleware.GetReqID(r.Context())
	if traceID == "" {
		traceID = ids.New("trace")
	}

	writeJSON(w, status, errorEnvelope{
		Code:      string(kind),
		Message:   err.Error(),
		Timestamp: ids.Now().Format(rfc3339Milli),
		TraceID:   traceID,
	})
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("ingress.decodeJSON", "malformed request body: "+err.Error())
	}
	return nil
}
