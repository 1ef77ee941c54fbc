package http

import (
	"net/http"
	"time"
)

// handleFeeAnalysis returns the per-fee-head reconciliation for one student,
// recomputed from the schedule, overrides, and ledger on every call. An
// optional ?asOf=2006-01-02 evaluates the analysis at a past or future date.
func (s *Server) handleFeeAnalysis(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		parsed, err := parseDate("asOf", raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		asOf = parsed
	}

	items, err := s.engine.Analyze(r.Context(), r.PathValue("studentID"), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]analysisItemJSON, len(items))
	for i, item := range items {
		out[i] = analysisItemToJSON(item)
	}
	writeJSON(w, http.StatusOK, out)
}
