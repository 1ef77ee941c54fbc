package http

import (
	"fmt"
	"net/http"
	"strconv"

	"bursar/internal/core"
	"bursar/internal/services"
)

type commitItemJSON struct {
	FeeID         string `json:"feeId"`
	AmountCents   int64  `json:"amountCents,omitempty"`
	Amount        string `json:"amount,omitempty"`
	PaymentMethod string `json:"paymentMethod"`
	Period        string `json:"period"`
	Description   string `json:"description,omitempty"`
}

type commitRequest struct {
	StudentID string           `json:"studentId"`
	Items     []commitItemJSON `json:"items"`
}

type reverseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleCommit records a payment batch. The whole batch persists or none of
// it does; per-item rejections come back in the error details.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body commitRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]services.CommitItem, len(body.Items))
	for i, it := range body.Items {
		amount, err := pickAmount(fmt.Sprintf("items[%d].amount", i), it.AmountCents, it.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		period, err := core.ParsePeriod(it.Period)
		if err != nil {
			writeError(w, r, err)
			return
		}
		items[i] = services.CommitItem{
			FeeID:         sanitizeInput(it.FeeID),
			Amount:        amount,
			PaymentMethod: core.PaymentMethod(it.PaymentMethod),
			Period:        period,
			Description:   sanitizeInput(it.Description),
		}
	}

	studentID := sanitizeInput(body.StudentID)
	result, err := s.collection.Commit(r.Context(), studentID, items)
	if err != nil {
		var details any
		if len(result.FailedItems) > 0 {
			details = result.FailedItems
		}
		writeErrorDetails(w, r, err, details)
		return
	}

	var totalCents int64
	for _, item := range items {
		totalCents += item.Amount.Cents
	}
	s.structured.LogPaymentCommitted(r.Context(), studentID, result.TransactionIDs, totalCents)

	writeJSON(w, http.StatusCreated, result)
}

// handleReverse appends a compensating ledger entry for one transaction.
func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseInt(r.PathValue("txID"), 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: bad transaction id %q", core.ErrValidation, r.PathValue("txID")))
		return
	}

	var body reverseRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}

	reversal, err := s.collection.Reverse(r.Context(), txID, sanitizeInput(body.Reason))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionToJSON(reversal))
}
