package core

import (
	"fmt"
	"time"
)

// Period is one billing month. Recurring fee heads accrue one occurrence
// per period; one-off heads carry the period of their eligibility date.
type Period struct {
	Year  int
	Month int // 1-12
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// ParsePeriod parses "2006-01" formatted strings.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: bad period %q", ErrValidation, s)
	}
	return PeriodOf(t), nil
}

func (p Period) Validate() error {
	if p.Year < 1 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: bad period %d-%d", ErrValidation, p.Year, p.Month)
	}
	return nil
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following billing period.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// After reports whether p follows other.
func (p Period) After(other Period) bool {
	return other.Before(p)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
