package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Strob0t/mailflow/internal/domain"
)

// bodyLimit caps request bodies. Emails larger than this are rejected
// before decoding.
const bodyLimit = 2 << 20

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit. Decoding errors
// are answered with 400 (413 when the body is too large).
func readJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, domain.StageValidation, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, domain.StageValidation, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, domain.StageValidation, fmt.Sprintf("invalid request body: %v", err))
		}
		return v, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, domain.StageValidation, "invalid request body: trailing data")
		return v, false
	}
	return v, true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Status string `json:"status"`
	Stage  string `json:"stage,omitempty"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, stage, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Stage: stage, Error: message})
}

// statusFor maps a pipeline error to an HTTP status. Validation failures
// are the caller's fault; everything downstream is reported as a bad
// gateway so that an upstream caller treats it as a failed delivery.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrClassification),
		errors.Is(err, domain.ErrRoutingDispatch),
		errors.Is(err, domain.ErrHandlerUnreachable),
		errors.Is(err, domain.ErrFallbackExhausted),
		errors.Is(err, domain.ErrHandlerUnresolved):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// stageOf returns the failing stage recorded on err, if any.
func stageOf(err error) string {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// writePipelineError answers with the status and stage for err. Unknown
// errors are logged and hidden behind a generic message.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, status, stageOf(err), "internal server error")
		return
	}
	writeError(w, status, stageOf(err), err.Error())
}
