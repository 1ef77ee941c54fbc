package services

import (
	"context"

	"bursar/internal/core"
)

// Ports for the persistence adapters. Implemented by the SQLite repository
// and the in-memory store.
type (
	// FeeScheduleStore persists fee head definitions. Listing preserves
	// definition order. Deleting a fee head never touches ledger entries.
	FeeScheduleStore interface {
		CreateFeeSetting(ctx context.Context, f core.FeeSetting) (core.FeeSetting, error)
		UpdateFeeSetting(ctx context.Context, f core.FeeSetting) error
		DeleteFeeSetting(ctx context.Context, feeID string) error
		GetFeeSetting(ctx context.Context, feeID string) (core.FeeSetting, error)
		ListFeeSettings(ctx context.Context) ([]core.FeeSetting, error)
	}

	// OverrideStore persists per-student fee overrides, keyed by
	// (studentID, feeID). Overrides are deactivated, never deleted.
	OverrideStore interface {
		PutOverride(ctx context.Context, o core.CustomStudentFee) error
		GetOverride(ctx context.Context, studentID, feeID string) (core.CustomStudentFee, error)
		// ListOverrides returns all overrides, or one student's when
		// studentID is non-empty.
		ListOverrides(ctx context.Context, studentID string) ([]core.CustomStudentFee, error)
		DeactivateOverride(ctx context.Context, studentID, feeID string) error
	}

	// StudentStore is the minimal student registry projection.
	StudentStore interface {
		PutStudent(ctx context.Context, s core.Student) error
		GetStudent(ctx context.Context, studentID string) (core.Student, error)
	}

	// LedgerStore is the append-only payment ledger. Query returns entries
	// oldest first; feeID narrows to one fee head when non-empty. InsertBatch
	// persists all entries or none.
	LedgerStore interface {
		Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		InsertBatch(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error)
		Query(ctx context.Context, studentID, feeID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	}
)

// ReceiptPublisher emits payment.recorded events after a confirmed commit.
// Publishing is best effort; a lost event never fails the commit.
type ReceiptPublisher interface {
	PublishPaymentRecorded(ctx context.Context, studentID string, txIDs []int64, totalCents int64) error
}
