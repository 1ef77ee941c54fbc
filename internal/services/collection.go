package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bursar/internal/core"
)

// OverpaymentPolicy decides what happens when a payment exceeds the freshly
// recomputed due amount.
type OverpaymentPolicy string

const (
	// OverpayReject refuses the batch with a conflict: the client's view of
	// the balance was stale.
	OverpayReject OverpaymentPolicy = "reject"
	// OverpayCredit accepts the excess and surfaces it as an explicit credit
	// on the fee head's analysis.
	OverpayCredit OverpaymentPolicy = "credit"
)

func (p OverpaymentPolicy) Valid() bool {
	return p == OverpayReject || p == OverpayCredit
}

// CommitItem is one payment in a batch.
type CommitItem struct {
	FeeID         string
	Amount        core.Money
	PaymentMethod core.PaymentMethod
	Period        core.Period
	Description   string
}

// FailedItem explains why one batch item was refused.
type FailedItem struct {
	Index  int    `json:"index"`
	FeeID  string `json:"feeId"`
	Reason string `json:"reason"`
}

// CommitResult reports a batch outcome. Success is true only when every
// item was durably persisted.
type CommitResult struct {
	Success        bool         `json:"success"`
	TransactionIDs []int64      `json:"transactionIds,omitempty"`
	FailedItems    []FailedItem `json:"failedItems,omitempty"`
}

// studentLocks hands out one mutex per student id so commits for the same
// student serialize while different students proceed independently.
type studentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newStudentLocks() *studentLocks {
	return &studentLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *studentLocks) get(studentID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[studentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[studentID] = m
	}
	return m
}

// CollectionService validates and commits payment batches. It owns the
// consistency boundary: "recompute reconciliation, then append matching
// transactions" runs as one atomic unit under a per-student critical
// section, so two concurrent commits can never both consume the same
// outstanding balance.
type CollectionService struct {
	schedule  FeeScheduleStore
	ledger    LedgerStore
	engine    *ReconciliationEngine
	publisher ReceiptPublisher
	policy    OverpaymentPolicy
	locks     *studentLocks
	now       func() time.Time
}

func NewCollectionService(schedule FeeScheduleStore, ledger LedgerStore, engine *ReconciliationEngine, publisher ReceiptPublisher, policy OverpaymentPolicy) *CollectionService {
	if !policy.Valid() {
		policy = OverpayReject
	}
	return &CollectionService{
		schedule:  schedule,
		ledger:    ledger,
		engine:    engine,
		publisher: publisher,
		policy:    policy,
		locks:     newStudentLocks(),
		now:       time.Now,
	}
}

// Commit validates every item against a fresh reconciliation taken inside
// the same critical section, then appends all transactions atomically.
// Either every item persists or none does. Downstream receipt effects are
// best effort and never change the result.
func (s *CollectionService) Commit(ctx context.Context, studentID string, items []CommitItem) (CommitResult, error) {
	if strings.TrimSpace(studentID) == "" {
		return CommitResult{}, fmt.Errorf("%w: missing student id", core.ErrValidation)
	}
	if len(items) == 0 {
		return CommitResult{}, fmt.Errorf("%w: empty payment batch", core.ErrValidation)
	}

	lock := s.locks.get(studentID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()

	// Fresh reconciliation inside the lock; this is the snapshot the batch
	// is validated against.
	analysis, err := s.engine.Analyze(ctx, studentID, now)
	if err != nil {
		return CommitResult{}, err
	}
	dueByFee := make(map[string]int64, len(analysis))
	for _, item := range analysis {
		dueByFee[item.FeeID] = item.DueAmount.Cents
	}

	txs := make([]core.Transaction, 0, len(items))
	var failed []FailedItem
	var overpaid bool
	requested := make(map[string]int64) // running batch total per fee head
	for i, item := range items {
		tx := core.Transaction{
			StudentID:     studentID,
			FeeID:         item.FeeID,
			Period:        item.Period,
			AmountPaid:    item.Amount,
			PaymentMethod: item.PaymentMethod,
			Timestamp:     now,
			Description:   item.Description,
		}
		if err := tx.Validate(); err != nil {
			failed = append(failed, FailedItem{Index: i, FeeID: item.FeeID, Reason: err.Error()})
			continue
		}
		if _, err := s.schedule.GetFeeSetting(ctx, item.FeeID); err != nil {
			failed = append(failed, FailedItem{Index: i, FeeID: item.FeeID, Reason: fmt.Sprintf("unknown fee head: %s", item.FeeID)})
			continue
		}
		if s.policy == OverpayReject {
			due, applicable := dueByFee[item.FeeID]
			if !applicable {
				failed = append(failed, FailedItem{Index: i, FeeID: item.FeeID, Reason: "fee head not applicable to student"})
				continue
			}
			if requested[item.FeeID]+item.Amount.Cents > due {
				remaining := core.Money{Cents: due - requested[item.FeeID]}
				failed = append(failed, FailedItem{Index: i, FeeID: item.FeeID, Reason: fmt.Sprintf("payment exceeds outstanding due of %s", remaining)})
				overpaid = true
				continue
			}
		}
		requested[item.FeeID] += item.Amount.Cents
		txs = append(txs, tx)
	}

	if len(failed) > 0 {
		// All-or-nothing: any rejected item blocks the whole batch. An
		// overpayment means the caller's view of the dues is stale, so it
		// outranks plain validation failures in the error kind.
		if overpaid {
			return CommitResult{Success: false, FailedItems: failed},
				fmt.Errorf("%w: due amount changed, re-fetch fee analysis for student %s", core.ErrConflict, studentID)
		}
		return CommitResult{Success: false, FailedItems: failed},
			fmt.Errorf("%w: %d of %d items rejected", core.ErrValidation, len(failed), len(items))
	}

	inserted, err := s.insertBatchRetry(ctx, txs)
	if err != nil {
		return CommitResult{Success: false}, err
	}

	ids := make([]int64, len(inserted))
	var totalCents int64
	for i, tx := range inserted {
		ids[i] = tx.ID
		totalCents += tx.AmountPaid.Cents
	}

	s.publishReceipt(ctx, studentID, ids, totalCents)

	return CommitResult{Success: true, TransactionIDs: ids}, nil
}

// Reverse appends a compensating entry referencing the original ledger
// entry, preserving the append-only invariant instead of deleting history.
func (s *CollectionService) Reverse(ctx context.Context, txID int64, reason string) (core.Transaction, error) {
	original, err := s.ledger.GetTransaction(ctx, txID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reverse transaction %d: %w", txID, err)
	}
	if original.ReversalOf != 0 {
		return core.Transaction{}, fmt.Errorf("%w: transaction %d is itself a reversal", core.ErrValidation, txID)
	}

	lock := s.locks.get(original.StudentID)
	lock.Lock()
	defer lock.Unlock()

	// One reversal per entry.
	existing, err := s.ledger.Query(ctx, original.StudentID, original.FeeID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reverse transaction %d: %w", txID, err)
	}
	for _, tx := range existing {
		if tx.ReversalOf == txID {
			return core.Transaction{}, fmt.Errorf("%w: transaction %d already reversed by %d", core.ErrConflict, txID, tx.ID)
		}
	}

	if reason == "" {
		reason = fmt.Sprintf("reversal of transaction %d", txID)
	}
	reversal := core.Transaction{
		StudentID:     original.StudentID,
		FeeID:         original.FeeID,
		Period:        original.Period,
		AmountPaid:    original.AmountPaid,
		PaymentMethod: original.PaymentMethod,
		Timestamp:     s.now(),
		Description:   reason,
		ReversalOf:    txID,
	}

	inserted, err := s.insertBatchRetry(ctx, []core.Transaction{reversal})
	if err != nil {
		return core.Transaction{}, err
	}
	return inserted[0], nil
}

// insertBatchRetry appends atomically, retrying once when the store reports
// a transient failure.
func (s *CollectionService) insertBatchRetry(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	inserted, err := s.ledger.InsertBatch(ctx, txs)
	if err == nil {
		return inserted, nil
	}
	if !errors.Is(err, core.ErrStorage) || ctx.Err() != nil {
		return nil, err
	}
	slog.WarnContext(ctx, "Ledger insert failed, retrying once", "error", err, "count", len(txs))
	inserted, err = s.ledger.InsertBatch(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("ledger insert after retry: %w", err)
	}
	return inserted, nil
}

func (s *CollectionService) publishReceipt(ctx context.Context, studentID string, ids []int64, totalCents int64) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No receipt publisher configured, skipping event", "student_id", studentID)
		return
	}
	if err := s.publisher.PublishPaymentRecorded(ctx, studentID, ids, totalCents); err != nil {
		// Best effort only: receipts and SMS are downstream concerns, their
		// failure never implies the payment failed.
		slog.ErrorContext(ctx, "Failed to publish payment.recorded event",
			"student_id", studentID, "transaction_ids", ids, "error", err)
	}
}
