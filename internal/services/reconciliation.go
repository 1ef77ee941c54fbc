package services

import (
	"context"
	"fmt"
	"time"

	"bursar/internal/core"
)

// ReconciliationEngine derives the outstanding balance per fee head by
// comparing accrued amounts against the payment ledger. A pure read: it
// never mutates any store and holds no cache, so two calls with no state
// change in between yield identical results.
type ReconciliationEngine struct {
	schedule FeeScheduleStore
	students StudentStore
	ledger   LedgerStore
	accrual  *AccrualCalculator
}

func NewReconciliationEngine(schedule FeeScheduleStore, students StudentStore, ledger LedgerStore, accrual *AccrualCalculator) *ReconciliationEngine {
	return &ReconciliationEngine{schedule: schedule, students: students, ledger: ledger, accrual: accrual}
}

// Analyze returns one FeeAnalysisItem per fee head applicable to the
// student, in fee definition order. A fee head whose active window has
// ended keeps appearing while the student carries accrued history or
// payments against it; outstanding balances do not vanish at window end.
func (e *ReconciliationEngine) Analyze(ctx context.Context, studentID string, asOf time.Time) ([]core.FeeAnalysisItem, error) {
	student, err := e.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("analyze student %s: %w", studentID, err)
	}

	settings, err := e.schedule.ListFeeSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fee settings: %w", err)
	}

	items := make([]core.FeeAnalysisItem, 0, len(settings))
	for _, setting := range settings {
		if !setting.AppliesTo(student) {
			continue
		}
		// Not started yet: nothing can have accrued or been paid.
		if !setting.ActiveFrom.IsZero() && setting.ActiveFrom.After(asOf) {
			continue
		}

		actual, err := e.accrual.ActualAmount(ctx, studentID, setting.FeeID, asOf)
		if err != nil {
			return nil, err
		}

		txs, err := e.ledger.Query(ctx, studentID, setting.FeeID)
		if err != nil {
			return nil, fmt.Errorf("query ledger for fee %s: %w", setting.FeeID, err)
		}
		paid := core.SumPaid(txs)

		items = append(items, core.FeeAnalysisItem{
			FeeID:        setting.FeeID,
			Description:  setting.Description,
			ActualAmount: actual,
			TotalPaid:    paid,
			DueAmount:    actual.Sub(paid).ClampZero(),
			Credit:       paid.Sub(actual).ClampZero(),
		})
	}
	return items, nil
}
