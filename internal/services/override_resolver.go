package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bursar/internal/core"
)

// OverrideResolver computes the effective per-occurrence amount for a
// (student, fee head, date). A pure read over the current store state.
type OverrideResolver struct {
	schedule  FeeScheduleStore
	overrides OverrideStore
}

func NewOverrideResolver(schedule FeeScheduleStore, overrides OverrideStore) *OverrideResolver {
	return &OverrideResolver{schedule: schedule, overrides: overrides}
}

// Resolve returns the override amount when an active override with
// effectiveFrom <= asOf exists and the fee head permits overrides;
// otherwise the fee head's base amount. Unknown fee heads fail with
// core.ErrNotFound.
func (r *OverrideResolver) Resolve(ctx context.Context, studentID, feeID string, asOf time.Time) (core.Money, error) {
	setting, err := r.schedule.GetFeeSetting(ctx, feeID)
	if err != nil {
		return core.Money{}, fmt.Errorf("resolve fee %s: %w", feeID, err)
	}

	if !setting.CanOverride {
		return setting.Amount, nil
	}

	override, err := r.overrides.GetOverride(ctx, studentID, feeID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return setting.Amount, nil
		}
		return core.Money{}, fmt.Errorf("resolve override for student %s fee %s: %w", studentID, feeID, err)
	}

	if !override.InEffect(asOf) {
		return setting.Amount, nil
	}
	return override.NewAmount, nil
}
