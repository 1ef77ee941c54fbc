// Package storage persists the fee schedule, overrides, student registry,
// and payment ledger in SQLite. Schema lives in embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bursar/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// storageErr tags a database failure with the taxonomy sentinel so callers
// can classify (and retry once) without depending on driver error types.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, core.ErrStorage, err)
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CreateFeeSetting implements services.FeeScheduleStore. Definition order
// is the autoincrement position.
func (r *SQLiteRepository) CreateFeeSetting(ctx context.Context, f core.FeeSetting) (core.FeeSetting, error) {
	if err := f.Validate(); err != nil {
		return core.FeeSetting{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO fee_settings (fee_id, description, amount_cents, class_scope, active_from, active_to, can_override, recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FeeID, f.Description, f.Amount.Cents, f.ClassScope,
		encodeTime(f.ActiveFrom), encodeTime(f.ActiveTo), f.CanOverride, f.Recurring)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return core.FeeSetting{}, fmt.Errorf("%w: fee %s already exists", core.ErrConflict, f.FeeID)
		}
		return core.FeeSetting{}, storageErr("create fee setting", err)
	}
	pos, err := res.LastInsertId()
	if err != nil {
		return core.FeeSetting{}, storageErr("create fee setting", err)
	}
	f.Position = pos

	slog.InfoContext(ctx, "Fee setting created",
		"fee_id", f.FeeID,
		"amount_cents", f.Amount.Cents,
		"recurring", f.Recurring,
		"class_scope", f.ClassScope)

	return f, nil
}

func (r *SQLiteRepository) UpdateFeeSetting(ctx context.Context, f core.FeeSetting) error {
	if err := f.Validate(); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE fee_settings
		SET description = ?, amount_cents = ?, class_scope = ?, active_from = ?, active_to = ?, can_override = ?, recurring = ?
		WHERE fee_id = ?`,
		f.Description, f.Amount.Cents, f.ClassScope,
		encodeTime(f.ActiveFrom), encodeTime(f.ActiveTo), f.CanOverride, f.Recurring, f.FeeID)
	if err != nil {
		return storageErr("update fee setting", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update fee setting", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: fee %s", core.ErrNotFound, f.FeeID)
	}
	return nil
}

// DeleteFeeSetting removes the definition row only. Ledger entries against
// the fee head are untouched and stay queryable.
func (r *SQLiteRepository) DeleteFeeSetting(ctx context.Context, feeID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fee_settings WHERE fee_id = ?`, feeID)
	if err != nil {
		return storageErr("delete fee setting", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete fee setting", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: fee %s", core.ErrNotFound, feeID)
	}

	slog.InfoContext(ctx, "Fee setting deleted, ledger history preserved", "fee_id", feeID)
	return nil
}

func (r *SQLiteRepository) GetFeeSetting(ctx context.Context, feeID string) (core.FeeSetting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT position, fee_id, description, amount_cents, class_scope, active_from, active_to, can_override, recurring
		FROM fee_settings WHERE fee_id = ?`, feeID)
	f, err := scanFeeSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FeeSetting{}, fmt.Errorf("%w: fee %s", core.ErrNotFound, feeID)
	}
	if err != nil {
		return core.FeeSetting{}, storageErr("get fee setting", err)
	}
	return f, nil
}

func (r *SQLiteRepository) ListFeeSettings(ctx context.Context) ([]core.FeeSetting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT position, fee_id, description, amount_cents, class_scope, active_from, active_to, can_override, recurring
		FROM fee_settings ORDER BY position`)
	if err != nil {
		return nil, storageErr("list fee settings", err)
	}
	defer rows.Close()

	var out []core.FeeSetting
	for rows.Next() {
		f, err := scanFeeSetting(rows)
		if err != nil {
			return nil, storageErr("list fee settings", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list fee settings", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeeSetting(row rowScanner) (core.FeeSetting, error) {
	var (
		f              core.FeeSetting
		amountCents    int64
		fromStr, toStr string
	)
	if err := row.Scan(&f.Position, &f.FeeID, &f.Description, &amountCents, &f.ClassScope, &fromStr, &toStr, &f.CanOverride, &f.Recurring); err != nil {
		return core.FeeSetting{}, err
	}
	f.Amount = core.Money{Cents: amountCents}
	var err error
	if f.ActiveFrom, err = decodeTime(fromStr); err != nil {
		return core.FeeSetting{}, err
	}
	if f.ActiveTo, err = decodeTime(toStr); err != nil {
		return core.FeeSetting{}, err
	}
	return f, nil
}

// PutOverride implements services.OverrideStore. Valid only against a fee
// head with can_override set.
func (r *SQLiteRepository) PutOverride(ctx context.Context, o core.CustomStudentFee) error {
	if err := o.Validate(); err != nil {
		return err
	}

	setting, err := r.GetFeeSetting(ctx, o.FeeID)
	if err != nil {
		return err
	}
	if !setting.CanOverride {
		return fmt.Errorf("%w: fee %s does not permit overrides", core.ErrValidation, o.FeeID)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO custom_student_fees (student_id, fee_id, new_amount_cents, effective_from, active, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, fee_id) DO UPDATE SET
			new_amount_cents = excluded.new_amount_cents,
			effective_from = excluded.effective_from,
			active = excluded.active,
			reason = excluded.reason`,
		o.StudentID, o.FeeID, o.NewAmount.Cents, encodeTime(o.EffectiveFrom), o.Active, o.Reason)
	if err != nil {
		return storageErr("put override", err)
	}

	slog.InfoContext(ctx, "Student fee override stored",
		"student_id", o.StudentID,
		"fee_id", o.FeeID,
		"new_amount_cents", o.NewAmount.Cents,
		"active", o.Active)
	return nil
}

func (r *SQLiteRepository) GetOverride(ctx context.Context, studentID, feeID string) (core.CustomStudentFee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT student_id, fee_id, new_amount_cents, effective_from, active, reason
		FROM custom_student_fees WHERE student_id = ? AND fee_id = ?`, studentID, feeID)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CustomStudentFee{}, fmt.Errorf("%w: override for student %s fee %s", core.ErrNotFound, studentID, feeID)
	}
	if err != nil {
		return core.CustomStudentFee{}, storageErr("get override", err)
	}
	return o, nil
}

func (r *SQLiteRepository) ListOverrides(ctx context.Context, studentID string) ([]core.CustomStudentFee, error) {
	query := `
		SELECT student_id, fee_id, new_amount_cents, effective_from, active, reason
		FROM custom_student_fees`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY student_id, fee_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list overrides", err)
	}
	defer rows.Close()

	var out []core.CustomStudentFee
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, storageErr("list overrides", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list overrides", err)
	}
	return out, nil
}

// DeactivateOverride keeps the row for history, only flipping active off.
func (r *SQLiteRepository) DeactivateOverride(ctx context.Context, studentID, feeID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE custom_student_fees SET active = 0 WHERE student_id = ? AND fee_id = ?`,
		studentID, feeID)
	if err != nil {
		return storageErr("deactivate override", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("deactivate override", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: override for student %s fee %s", core.ErrNotFound, studentID, feeID)
	}
	return nil
}

func scanOverride(row rowScanner) (core.CustomStudentFee, error) {
	var (
		o           core.CustomStudentFee
		amountCents int64
		fromStr     string
	)
	if err := row.Scan(&o.StudentID, &o.FeeID, &amountCents, &fromStr, &o.Active, &o.Reason); err != nil {
		return core.CustomStudentFee{}, err
	}
	o.NewAmount = core.Money{Cents: amountCents}
	var err error
	if o.EffectiveFrom, err = decodeTime(fromStr); err != nil {
		return core.CustomStudentFee{}, err
	}
	return o, nil
}

// PutStudent implements services.StudentStore.
func (r *SQLiteRepository) PutStudent(ctx context.Context, s core.Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, class_id, enrolled_at)
		VALUES (?, ?, ?)
		ON CONFLICT (student_id) DO UPDATE SET
			class_id = excluded.class_id,
			enrolled_at = excluded.enrolled_at`,
		s.StudentID, s.ClassID, encodeTime(s.EnrolledAt))
	if err != nil {
		return storageErr("put student", err)
	}
	return nil
}

func (r *SQLiteRepository) GetStudent(ctx context.Context, studentID string) (core.Student, error) {
	var (
		s          core.Student
		enrolledAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT student_id, class_id, enrolled_at FROM students WHERE student_id = ?`, studentID).
		Scan(&s.StudentID, &s.ClassID, &enrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, fmt.Errorf("%w: student %s", core.ErrNotFound, studentID)
	}
	if err != nil {
		return core.Student{}, storageErr("get student", err)
	}
	if s.EnrolledAt, err = decodeTime(enrolledAt); err != nil {
		return core.Student{}, storageErr("get student", err)
	}
	return s, nil
}

// Insert implements services.LedgerStore.
func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	inserted, err := r.InsertBatch(ctx, []core.Transaction{tx})
	if err != nil {
		return core.Transaction{}, err
	}
	return inserted[0], nil
}

// InsertBatch appends all entries in one database transaction: either every
// row is durable or none is. A canceled context mid-batch rolls back.
func (r *SQLiteRepository) InsertBatch(ctx context.Context, txs []core.Transaction) ([]core.Transaction, error) {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin ledger insert", err)
	}
	defer sqlTx.Rollback()

	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		res, err := sqlTx.ExecContext(ctx, `
			INSERT INTO fee_transactions (student_id, fee_id, period_year, period_month, amount_cents, payment_method, ts, description, reversal_of)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.StudentID, tx.FeeID, tx.Period.Year, tx.Period.Month,
			tx.AmountPaid.Cents, string(tx.PaymentMethod), encodeTime(tx.Timestamp), tx.Description, tx.ReversalOf)
		if err != nil {
			return nil, storageErr("insert ledger entry", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, storageErr("insert ledger entry", err)
		}
		tx.ID = id
		out = append(out, tx)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, storageErr("commit ledger insert", err)
	}

	slog.InfoContext(ctx, "Ledger entries appended", "count", len(out), "first_id", out[0].ID)
	return out, nil
}

// Query returns a student's ledger oldest first, optionally narrowed to one
// fee head. Fee heads deleted from the schedule remain queryable here.
func (r *SQLiteRepository) Query(ctx context.Context, studentID, feeID string) ([]core.Transaction, error) {
	query := `
		SELECT id, student_id, fee_id, period_year, period_month, amount_cents, payment_method, ts, description, reversal_of
		FROM fee_transactions WHERE student_id = ?`
	args := []any{studentID}
	if feeID != "" {
		query += ` AND fee_id = ?`
		args = append(args, feeID)
	}
	query += ` ORDER BY id`

	return r.queryTransactions(ctx, query, args...)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, fee_id, period_year, period_month, amount_cents, payment_method, ts, description, reversal_of
		FROM fee_transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %d", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, storageErr("get transaction", err)
	}
	return tx, nil
}

// GetPendingExportTransactions returns ledger entries not yet exported to
// the remittance register, oldest first.
func (r *SQLiteRepository) GetPendingExportTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, student_id, fee_id, period_year, period_month, amount_cents, payment_method, ts, description, reversal_of
		FROM fee_transactions WHERE export_status = 'pending' ORDER BY id LIMIT ?`, int64(limit))
}

// MarkExported records a successful remittance-register export.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE fee_transactions SET export_status = 'done' WHERE id = ?`, id); err != nil {
		return storageErr("mark exported", err)
	}
	slog.InfoContext(ctx, "Ledger entry marked as exported", "id", id)
	return nil
}

// MarkExportError flags an entry so the periodic scan retries it.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE fee_transactions SET export_status = 'error' WHERE id = ?`, id); err != nil {
		return storageErr("mark export error", err)
	}
	slog.WarnContext(ctx, "Ledger entry marked with export error", "id", id)
	return nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query ledger", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storageErr("query ledger", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query ledger", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx          core.Transaction
		amountCents int64
		method      string
		tsStr       string
	)
	if err := row.Scan(&tx.ID, &tx.StudentID, &tx.FeeID, &tx.Period.Year, &tx.Period.Month,
		&amountCents, &method, &tsStr, &tx.Description, &tx.ReversalOf); err != nil {
		return core.Transaction{}, err
	}
	tx.AmountPaid = core.Money{Cents: amountCents}
	tx.PaymentMethod = core.PaymentMethod(method)
	var err error
	if tx.Timestamp, err = decodeTime(tsStr); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}
