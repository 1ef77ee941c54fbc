// Package memory is an in-memory remittance register used in tests and when
// no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bursar/internal/core"
	ports "bursar/internal/sheets"
)

type Writer struct {
	mu   sync.Mutex
	rows []core.Transaction
}

var _ ports.RemittanceWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

func (w *Writer) Append(_ context.Context, tx core.Transaction) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, tx)
	return fmt.Sprintf("memory!A%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Transaction, len(w.rows))
	copy(out, w.rows)
	return out
}
