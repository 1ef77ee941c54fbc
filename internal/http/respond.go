package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"bursar/internal/core"
)

// errorResponse is the JSON body for every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	// Details carries structured per-item failures for batch commits.
	Details any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorDetails(w, r, err, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, err error, details any) {
	status := statusFor(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Details: details})
}

// decodeBody reads a JSON request body into dst, rejecting unknown fields
// so client typos surface as validation errors instead of silent drops.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", core.ErrValidation, err)
	}
	return nil
}
