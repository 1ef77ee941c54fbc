package worker

import (
	"context"
	"fmt"

	"bursar/internal/amqp"
	"bursar/internal/core"
	applog "bursar/internal/log"
	"bursar/internal/sheets"
)

// ExportStore is the slice of the ledger store the export worker needs.
type ExportStore interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetPendingExportTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

// ExportWorker copies committed ledger entries into the Google Sheets
// remittance register. The AMQP event path is the fast lane; the periodic
// pending scan is the backup for lost messages.
type ExportWorker struct {
	storage   ExportStore
	register  sheets.RemittanceWriter
	batchSize int
	logger    *applog.Logger
}

func NewExportWorker(storage ExportStore, register sheets.RemittanceWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		register:  register,
		batchSize: batchSize,
		logger:    applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker),
	}
}

// HandlePaymentRecorded processes one payment.recorded event from AMQP.
func (w *ExportWorker) HandlePaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error {
	w.logger.InfoContext(ctx, "Processing payment.recorded event",
		applog.FieldStudentID, msg.StudentID,
		"transaction_count", len(msg.TransactionIDs))

	for _, id := range msg.TransactionIDs {
		tx, err := w.storage.GetTransaction(ctx, id)
		if err != nil {
			return fmt.Errorf("get transaction %d from storage: %w", id, err)
		}
		if err := w.exportTransaction(ctx, tx); err != nil {
			return fmt.Errorf("export transaction %d: %w", id, err)
		}
	}
	return nil
}

// ProcessPendingExports exports any ledger entries the event path missed.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction", applog.FieldTransactionID, tx.ID, applog.FieldError, err)
			continue
		}
	}
	return nil
}

// StartupExportCheck drains the pending backlog at worker startup. Useful to
// recover from missed AMQP messages or worker downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	// Get a larger batch for startup check
	pending, err := w.storage.GetPendingExportTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}

	if len(pending) == 0 {
		w.logger.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction during startup",
				applog.FieldTransactionID, tx.ID, applog.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)

	return nil
}

func (w *ExportWorker) exportTransaction(ctx context.Context, tx core.Transaction) error {
	ref, err := w.register.Append(ctx, tx)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, tx.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark export error", applog.FieldTransactionID, tx.ID, applog.FieldError, markErr)
		}
		return fmt.Errorf("append to register: %w", err)
	}

	if err := w.storage.MarkExported(ctx, tx.ID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as exported", applog.FieldTransactionID, tx.ID, applog.FieldError, err)
		// Don't return error here - the export actually worked
	}

	w.logger.InfoContext(ctx, "Successfully exported transaction",
		applog.FieldTransactionID, tx.ID,
		applog.FieldSheetsRef, ref,
		applog.FieldStudentID, tx.StudentID,
		applog.FieldFeeID, tx.FeeID,
		applog.FieldAmountCents, tx.AmountPaid.Cents)

	return nil
}
