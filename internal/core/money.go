// Package core holds the fee engine's domain types: money, billing periods,
// fee heads, overrides, ledger transactions, and the error taxonomy.
//
// All monetary amounts are integer cents. Decimal strings coming over the
// HTTP boundary are parsed once, at the edge, with ParseDecimalToCents.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer minor units (cents). Arithmetic stays in
// cents; float conversion exists only for display.
type Money struct {
	Cents int64
}

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. Both dot and comma separators are
// accepted. Negative values and malformed input are rejected; zero is a
// valid parse result (fee heads may be free), callers that need a positive
// amount check separately.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// First two fractional digits are cents; third digit rounds half-up.
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// Validate rejects non-positive amounts. Used for payment amounts;
// schedule amounts only need to be non-negative and are checked separately.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{Cents: m.Cents + other.Cents} }

// Sub returns m - other.
func (m Money) Sub(other Money) Money { return Money{Cents: m.Cents - other.Cents} }

// ClampZero returns m, floored at zero.
func (m Money) ClampZero() Money {
	if m.Cents < 0 {
		return Money{}
	}
	return m
}

// String formats the amount as a plain decimal, e.g. "500.00".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}
