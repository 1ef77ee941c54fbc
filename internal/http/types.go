package http

import (
	"fmt"
	"strings"
	"time"

	"bursar/internal/core"
)

// sanitizeInput trims whitespace and drops control characters from a
// client-supplied string. Tab and newline survive so multi-line
// descriptions stay intact.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 32:
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// Wire representations. Amounts travel as integer cents; decimal strings
// ("500.00") are accepted on input for convenience and echoed on output for
// display. Dates are "2006-01-02"; ledger timestamps are RFC 3339.

const dateLayout = "2006-01-02"

type feeSettingJSON struct {
	FeeID       string `json:"feeId"`
	Description string `json:"description"`
	AmountCents int64  `json:"amountCents,omitempty"`
	Amount      string `json:"amount,omitempty"`
	ClassScope  string `json:"classScope,omitempty"`
	ActiveFrom  string `json:"activeFrom,omitempty"`
	ActiveTo    string `json:"activeTo,omitempty"`
	CanOverride bool   `json:"canOverride"`
	Recurring   bool   `json:"recurring"`
	Position    int64  `json:"position"`
}

type overrideJSON struct {
	StudentID      string `json:"studentId"`
	FeeID          string `json:"feeId"`
	NewAmountCents int64  `json:"newAmountCents,omitempty"`
	NewAmount      string `json:"newAmount,omitempty"`
	EffectiveFrom  string `json:"effectiveFrom"`
	Active         bool   `json:"active"`
	Reason         string `json:"reason,omitempty"`
}

type studentJSON struct {
	StudentID  string `json:"studentId"`
	ClassID    string `json:"classId,omitempty"`
	EnrolledAt string `json:"enrolledAt"`
}

type transactionJSON struct {
	ID              int64  `json:"id"`
	StudentID       string `json:"studentId"`
	FeeID           string `json:"feeId"`
	Period          string `json:"period"`
	AmountPaidCents int64  `json:"amountPaidCents"`
	AmountPaid      string `json:"amountPaid"`
	PaymentMethod   string `json:"paymentMethod"`
	Timestamp       string `json:"timestamp"`
	Description     string `json:"description,omitempty"`
	ReversalOf      int64  `json:"reversalOf,omitempty"`
}

type analysisItemJSON struct {
	FeeID             string `json:"feeId"`
	Description       string `json:"description"`
	ActualAmountCents int64  `json:"actualAmountCents"`
	ActualAmount      string `json:"actualAmount"`
	TotalPaidCents    int64  `json:"totalPaidCents"`
	TotalPaid         string `json:"totalPaid"`
	DueAmountCents    int64  `json:"dueAmountCents"`
	DueAmount         string `json:"dueAmount"`
	CreditCents       int64  `json:"creditCents,omitempty"`
	Credit            string `json:"credit,omitempty"`
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad %s %q, want 2006-01-02", core.ErrValidation, field, s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func parseAmount(field, s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: bad %s %q", core.ErrValidation, field, s)
	}
	return core.Money{Cents: cents}, nil
}

// pickAmount resolves the two accepted input forms: integer cents win when
// set, the decimal string is the fallback.
func pickAmount(field string, cents int64, decimal string) (core.Money, error) {
	if cents != 0 {
		if cents < 0 {
			return core.Money{}, fmt.Errorf("%w: bad %s: negative cents", core.ErrValidation, field)
		}
		return core.Money{Cents: cents}, nil
	}
	if decimal == "" {
		return core.Money{}, nil
	}
	return parseAmount(field, decimal)
}

func (j feeSettingJSON) toDomain() (core.FeeSetting, error) {
	amount, err := pickAmount("amount", j.AmountCents, j.Amount)
	if err != nil {
		return core.FeeSetting{}, err
	}
	from, err := parseDate("activeFrom", j.ActiveFrom)
	if err != nil {
		return core.FeeSetting{}, err
	}
	to, err := parseDate("activeTo", j.ActiveTo)
	if err != nil {
		return core.FeeSetting{}, err
	}
	return core.FeeSetting{
		FeeID:       sanitizeInput(j.FeeID),
		Description: sanitizeInput(j.Description),
		Amount:      amount,
		ClassScope:  sanitizeInput(j.ClassScope),
		ActiveFrom:  from,
		ActiveTo:    to,
		CanOverride: j.CanOverride,
		Recurring:   j.Recurring,
	}, nil
}

func feeSettingToJSON(f core.FeeSetting) feeSettingJSON {
	return feeSettingJSON{
		FeeID:       f.FeeID,
		Description: f.Description,
		AmountCents: f.Amount.Cents,
		Amount:      f.Amount.String(),
		ClassScope:  f.ClassScope,
		ActiveFrom:  formatDate(f.ActiveFrom),
		ActiveTo:    formatDate(f.ActiveTo),
		CanOverride: f.CanOverride,
		Recurring:   f.Recurring,
		Position:    f.Position,
	}
}

func (j overrideJSON) toDomain() (core.CustomStudentFee, error) {
	amount, err := pickAmount("newAmount", j.NewAmountCents, j.NewAmount)
	if err != nil {
		return core.CustomStudentFee{}, err
	}
	from, err := parseDate("effectiveFrom", j.EffectiveFrom)
	if err != nil {
		return core.CustomStudentFee{}, err
	}
	return core.CustomStudentFee{
		StudentID:     sanitizeInput(j.StudentID),
		FeeID:         sanitizeInput(j.FeeID),
		NewAmount:     amount,
		EffectiveFrom: from,
		Active:        true,
		Reason:        sanitizeInput(j.Reason),
	}, nil
}

func overrideToJSON(o core.CustomStudentFee) overrideJSON {
	return overrideJSON{
		StudentID:      o.StudentID,
		FeeID:          o.FeeID,
		NewAmountCents: o.NewAmount.Cents,
		NewAmount:      o.NewAmount.String(),
		EffectiveFrom:  formatDate(o.EffectiveFrom),
		Active:         o.Active,
		Reason:         o.Reason,
	}
}

func (j studentJSON) toDomain() (core.Student, error) {
	enrolled, err := parseDate("enrolledAt", j.EnrolledAt)
	if err != nil {
		return core.Student{}, err
	}
	return core.Student{
		StudentID:  sanitizeInput(j.StudentID),
		ClassID:    sanitizeInput(j.ClassID),
		EnrolledAt: enrolled,
	}, nil
}

func studentToJSON(s core.Student) studentJSON {
	return studentJSON{
		StudentID:  s.StudentID,
		ClassID:    s.ClassID,
		EnrolledAt: formatDate(s.EnrolledAt),
	}
}

func transactionToJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:              tx.ID,
		StudentID:       tx.StudentID,
		FeeID:           tx.FeeID,
		Period:          tx.Period.String(),
		AmountPaidCents: tx.AmountPaid.Cents,
		AmountPaid:      tx.AmountPaid.String(),
		PaymentMethod:   string(tx.PaymentMethod),
		Timestamp:       tx.Timestamp.UTC().Format(time.RFC3339),
		Description:     tx.Description,
		ReversalOf:      tx.ReversalOf,
	}
}

func analysisItemToJSON(item core.FeeAnalysisItem) analysisItemJSON {
	j := analysisItemJSON{
		FeeID:             item.FeeID,
		Description:       item.Description,
		ActualAmountCents: item.ActualAmount.Cents,
		ActualAmount:      item.ActualAmount.String(),
		TotalPaidCents:    item.TotalPaid.Cents,
		TotalPaid:         item.TotalPaid.String(),
		DueAmountCents:    item.DueAmount.Cents,
		DueAmount:         item.DueAmount.String(),
	}
	if item.Credit.Cents > 0 {
		j.CreditCents = item.Credit.Cents
		j.Credit = item.Credit.String()
	}
	return j
}
