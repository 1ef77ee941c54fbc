package sheets

import (
	"context"

	"bursar/internal/core"
)

// Ports for outbound adapters.
type (
	// RemittanceWriter appends a committed ledger entry to the school's
	// remittance register.
	RemittanceWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)
