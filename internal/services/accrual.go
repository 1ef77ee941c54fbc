// Package services implements the fee engine: override resolution, accrual,
// reconciliation, and payment collection.
//
// Accrual uses the Strategy Pattern: each schedule kind (monthly, one-off)
// has its own scheduler that encapsulates when occurrences fall due.
package services

import (
	"context"
	"fmt"
	"time"

	"bursar/internal/core"
)

// OccurrenceScheduler is the strategy interface for accrual schedules.
// Occurrences returns the valuation instants at which the fee head has
// accrued for the student, oldest first, up to and including asOf.
type OccurrenceScheduler interface {
	Occurrences(f core.FeeSetting, s core.Student, asOf time.Time) []time.Time
}

// MonthlyScheduler accrues one occurrence per billing month, starting at
// the later of the fee head's activeFrom and the student's enrollment date.
// Each occurrence is valued at its own period start, so a mid-year override
// change only reprices occurrences after the change.
type MonthlyScheduler struct{}

func (MonthlyScheduler) Occurrences(f core.FeeSetting, s core.Student, asOf time.Time) []time.Time {
	start := s.EnrolledAt
	if f.ActiveFrom.After(start) {
		start = f.ActiveFrom
	}
	if start.After(asOf) {
		return nil
	}

	// No new occurrences past the active window's end.
	end := asOf
	if !f.ActiveTo.IsZero() && f.ActiveTo.Before(end) {
		end = f.ActiveTo
	}
	if end.Before(start) {
		return nil
	}

	var occ []time.Time
	last := core.PeriodOf(end)
	for p := core.PeriodOf(start); !p.After(last); p = p.Next() {
		occ = append(occ, p.Start())
	}
	return occ
}

// OneOffScheduler accrues a single occurrence once eligibility first holds,
// valued at that instant.
type OneOffScheduler struct{}

func (OneOffScheduler) Occurrences(f core.FeeSetting, s core.Student, asOf time.Time) []time.Time {
	eligible := s.EnrolledAt
	if f.ActiveFrom.After(eligible) {
		eligible = f.ActiveFrom
	}
	if !f.ActiveTo.IsZero() && eligible.After(f.ActiveTo) {
		return nil
	}
	if eligible.After(asOf) {
		return nil
	}
	return []time.Time{eligible}
}

// occurrenceStrategies maps schedule kinds to their schedulers.
var occurrenceStrategies = map[core.ScheduleKind]OccurrenceScheduler{
	core.MonthlySchedule: MonthlyScheduler{},
	core.OneOffSchedule:  OneOffScheduler{},
}

// GetOccurrenceScheduler returns the scheduler for a schedule kind.
func GetOccurrenceScheduler(kind core.ScheduleKind) (OccurrenceScheduler, error) {
	sched, ok := occurrenceStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("unknown schedule kind: %s", kind)
	}
	return sched, nil
}

// AccrualCalculator computes how much of a fee head a student has accrued
// as of a date. Lazy and side-effect free: nothing is persisted, every call
// reads current store state.
type AccrualCalculator struct {
	schedule FeeScheduleStore
	students StudentStore
	resolver *OverrideResolver
}

func NewAccrualCalculator(schedule FeeScheduleStore, students StudentStore, resolver *OverrideResolver) *AccrualCalculator {
	return &AccrualCalculator{schedule: schedule, students: students, resolver: resolver}
}

// ActualAmount sums the values of all accrued occurrences. A fee head whose
// class scope excludes the student accrues zero. Each occurrence keeps the
// amount that was effective at its own valuation instant.
func (c *AccrualCalculator) ActualAmount(ctx context.Context, studentID, feeID string, asOf time.Time) (core.Money, error) {
	setting, err := c.schedule.GetFeeSetting(ctx, feeID)
	if err != nil {
		return core.Money{}, fmt.Errorf("accrue fee %s: %w", feeID, err)
	}
	student, err := c.students.GetStudent(ctx, studentID)
	if err != nil {
		return core.Money{}, fmt.Errorf("accrue for student %s: %w", studentID, err)
	}

	if !setting.AppliesTo(student) {
		return core.Money{}, nil
	}

	sched, err := GetOccurrenceScheduler(setting.Schedule())
	if err != nil {
		return core.Money{}, err
	}

	var total core.Money
	for _, at := range sched.Occurrences(setting, student, asOf) {
		amount, err := c.resolver.Resolve(ctx, studentID, feeID, at)
		if err != nil {
			return core.Money{}, fmt.Errorf("value occurrence at %s: %w", at.Format("2006-01-02"), err)
		}
		total = total.Add(amount)
	}
	return total, nil
}
