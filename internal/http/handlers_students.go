package http

import (
	"net/http"
)

func (s *Server) handlePutStudent(w http.ResponseWriter, r *http.Request) {
	var body studentJSON
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	student, err := body.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	student.StudentID = r.PathValue("studentID")
	if err := s.store.PutStudent(r.Context(), student); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studentToJSON(student))
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.store.GetStudent(r.Context(), r.PathValue("studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studentToJSON(student))
}

// handleListTransactions returns a student's ledger entries oldest first,
// optionally narrowed to one fee head via ?feeId=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	if _, err := s.store.GetStudent(r.Context(), studentID); err != nil {
		writeError(w, r, err)
		return
	}
	feeID := sanitizeInput(r.URL.Query().Get("feeId"))
	txs, err := s.store.Query(r.Context(), studentID, feeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionJSON, len(txs))
	for i, tx := range txs {
		out[i] = transactionToJSON(tx)
	}
	writeJSON(w, http.StatusOK, out)
}
