package http

import (
	"net/http"
)

func (s *Server) handleListFeeSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.ListFeeSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]feeSettingJSON, len(settings))
	for i, f := range settings {
		out[i] = feeSettingToJSON(f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFeeSetting(w http.ResponseWriter, r *http.Request) {
	var body feeSettingJSON
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	setting, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.store.CreateFeeSetting(r.Context(), setting)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, feeSettingToJSON(created))
}

func (s *Server) handleGetFeeSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.store.GetFeeSetting(r.Context(), r.PathValue("feeID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feeSettingToJSON(setting))
}

func (s *Server) handleUpdateFeeSetting(w http.ResponseWriter, r *http.Request) {
	var body feeSettingJSON
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	setting, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Path wins over any id in the body.
	setting.FeeID = r.PathValue("feeID")
	if err := s.store.UpdateFeeSetting(r.Context(), setting); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.store.GetFeeSetting(r.Context(), setting.FeeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feeSettingToJSON(updated))
}

// handleDeleteFeeSetting removes a fee head definition. Ledger history for
// the fee head is left untouched.
func (s *Server) handleDeleteFeeSetting(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFeeSetting(r.Context(), r.PathValue("feeID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
