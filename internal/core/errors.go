package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure the engine surfaces wraps one of the four
// base sentinels so callers can classify with errors.Is without inspecting
// message text.
var (
	// ErrValidation marks malformed input: non-positive amounts, unknown
	// payment methods, missing identifiers. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent student, fee head, or ledger entry.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a concurrent-modification conflict detected during
	// commit. Always surfaced; callers re-fetch a fresh analysis and resubmit.
	ErrConflict = errors.New("conflict")

	// ErrStorage marks an underlying I/O failure. Retried once internally
	// for transient failures, then surfaced.
	ErrStorage = errors.New("storage failure")
)

// Specific validation sentinels, kept for call sites that want to test for
// one exact condition. Both wrap ErrValidation so taxonomy checks still hold.
var (
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
)
