package http

import (
	"net/http"
)

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	studentID := sanitizeInput(r.URL.Query().Get("studentId"))
	overrides, err := s.store.ListOverrides(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]overrideJSON, len(overrides))
	for i, o := range overrides {
		out[i] = overrideToJSON(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePutOverride creates or replaces a per-student override. The store
// rejects overrides on fee heads that do not allow them.
func (s *Server) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideJSON
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	override, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.PutOverride(r.Context(), override); err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := s.store.GetOverride(r.Context(), override.StudentID, override.FeeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overrideToJSON(stored))
}

// handleUpdateOverride replaces an existing override in place, including its
// active flag. Unlike the create path the override must already exist.
func (s *Server) handleUpdateOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideJSON
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	override, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	override.StudentID = r.PathValue("studentID")
	override.FeeID = r.PathValue("feeID")
	override.Active = body.Active

	if _, err := s.store.GetOverride(r.Context(), override.StudentID, override.FeeID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.PutOverride(r.Context(), override); err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := s.store.GetOverride(r.Context(), override.StudentID, override.FeeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overrideToJSON(stored))
}

// handleDeactivateOverride flips the override inactive. The row stays so
// past decisions remain auditable.
func (s *Server) handleDeactivateOverride(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	feeID := r.PathValue("feeID")
	if err := s.store.DeactivateOverride(r.Context(), studentID, feeID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
