package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	Cash          PaymentMethod = "cash"
	MobileBanking PaymentMethod = "mobile-banking"
	BankTransfer  PaymentMethod = "bank-transfer"
)

const (
	MonthlySchedule ScheduleKind = "monthly"
	OneOffSchedule  ScheduleKind = "one-off"
)

type (
	PaymentMethod string

	// ScheduleKind names how a fee head accrues over time.
	ScheduleKind string

	// FeeSetting is a fee head: a named recurring or one-off charge category.
	FeeSetting struct {
		FeeID       string
		Description string
		Amount      Money
		// ClassScope limits the fee to one class; empty means all classes.
		ClassScope  string
		ActiveFrom  time.Time // zero means open start
		ActiveTo    time.Time // zero means open end
		CanOverride bool
		Recurring   bool  // monthly when true, one-off otherwise
		Position    int64 // definition order, assigned by the store
	}

	// CustomStudentFee replaces a fee head's amount for one student.
	// Deactivated rather than deleted so history stays intact.
	CustomStudentFee struct {
		StudentID     string
		FeeID         string
		NewAmount     Money
		EffectiveFrom time.Time
		Active        bool
		Reason        string
	}

	// Student is the minimal registry projection the engine needs:
	// which class a student belongs to and when accrual may start.
	Student struct {
		StudentID  string
		ClassID    string
		EnrolledAt time.Time
	}

	// Transaction is one append-only ledger entry. Once written it is never
	// mutated; corrections are separate reversal entries referencing the
	// original id.
	Transaction struct {
		ID            int64
		StudentID     string
		FeeID         string
		Period        Period
		AmountPaid    Money
		PaymentMethod PaymentMethod
		Timestamp     time.Time
		Description   string
		// ReversalOf holds the reversed transaction id, 0 for regular payments.
		ReversalOf int64
	}

	// FeeAnalysisItem is the derived per-fee-head reconciliation row.
	// Recomputed on every read, never persisted.
	FeeAnalysisItem struct {
		FeeID        string
		Description  string
		ActualAmount Money
		TotalPaid    Money
		DueAmount    Money
		// Credit is the overpaid remainder, nonzero only when payments
		// exceed the accrued amount.
		Credit Money
	}
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case Cash, MobileBanking, BankTransfer:
		return true
	}
	return false
}

func (f FeeSetting) Validate() error {
	if strings.TrimSpace(f.FeeID) == "" {
		return fmt.Errorf("%w: empty fee id", ErrValidation)
	}
	if f.Amount.Cents < 0 {
		return fmt.Errorf("%w: negative fee amount", ErrValidation)
	}
	if len(f.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	if !f.ActiveFrom.IsZero() && !f.ActiveTo.IsZero() && f.ActiveTo.Before(f.ActiveFrom) {
		return fmt.Errorf("%w: active window ends before it starts", ErrValidation)
	}
	return nil
}

// ActiveDuring reports whether the fee head's window covers t.
func (f FeeSetting) ActiveDuring(t time.Time) bool {
	if !f.ActiveFrom.IsZero() && t.Before(f.ActiveFrom) {
		return false
	}
	if !f.ActiveTo.IsZero() && t.After(f.ActiveTo) {
		return false
	}
	return true
}

// AppliesTo reports whether the fee head's class scope covers the student.
func (f FeeSetting) AppliesTo(s Student) bool {
	return f.ClassScope == "" || f.ClassScope == s.ClassID
}

// Schedule returns the fee head's accrual schedule kind.
func (f FeeSetting) Schedule() ScheduleKind {
	if f.Recurring {
		return MonthlySchedule
	}
	return OneOffSchedule
}

func (c CustomStudentFee) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return fmt.Errorf("%w: empty student id", ErrValidation)
	}
	if strings.TrimSpace(c.FeeID) == "" {
		return fmt.Errorf("%w: empty fee id", ErrValidation)
	}
	if c.NewAmount.Cents < 0 {
		return fmt.Errorf("%w: negative override amount", ErrValidation)
	}
	if c.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: missing effectiveFrom", ErrValidation)
	}
	return nil
}

// InEffect reports whether the override applies at asOf.
func (c CustomStudentFee) InEffect(asOf time.Time) bool {
	return c.Active && !c.EffectiveFrom.After(asOf)
}

func (s Student) Validate() error {
	if strings.TrimSpace(s.StudentID) == "" {
		return fmt.Errorf("%w: empty student id", ErrValidation)
	}
	if s.EnrolledAt.IsZero() {
		return fmt.Errorf("%w: missing enrollment date", ErrValidation)
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.StudentID) == "" {
		return fmt.Errorf("%w: empty student id", ErrValidation)
	}
	if strings.TrimSpace(t.FeeID) == "" {
		return fmt.Errorf("%w: empty fee id", ErrValidation)
	}
	if t.AmountPaid.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !t.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrValidation, t.PaymentMethod)
	}
	if err := t.Period.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	}
	return nil
}

// SumPaid totals a set of ledger entries for one (student, fee head),
// subtracting reversal entries so a reversed payment contributes nothing.
func SumPaid(txs []Transaction) Money {
	var cents int64
	for _, tx := range txs {
		if tx.ReversalOf != 0 {
			cents -= tx.AmountPaid.Cents
		} else {
			cents += tx.AmountPaid.Cents
		}
	}
	return Money{Cents: cents}
}
