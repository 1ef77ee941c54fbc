package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"bursar/internal/core"
)

func (e *testEnv) mustInsertPayment(t *testing.T, studentID, feeID string, amount int64, period core.Period) core.Transaction {
	t.Helper()
	tx, err := e.store.Insert(context.Background(), core.Transaction{
		StudentID:     studentID,
		FeeID:         feeID,
		Period:        period,
		AmountPaid:    cents(amount),
		PaymentMethod: core.Cash,
		Timestamp:     period.Start(),
	})
	if err != nil {
		t.Fatalf("Insert payment error = %v", err)
	}
	return tx
}

func TestAnalyzePartialPayment(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:       "tuition",
		Description: "Monthly tuition",
		Amount:      cents(50000),
		ActiveFrom:  date(2026, time.January, 1),
		Recurring:   true,
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", ClassID: "c-5", EnrolledAt: date(2026, time.January, 1)})
	env.mustInsertPayment(t, "s-1", "tuition", 50000, core.Period{Year: 2026, Month: 1})
	env.mustInsertPayment(t, "s-1", "tuition", 50000, core.Period{Year: 2026, Month: 2})

	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.March, 15))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Analyze() returned %d items, want 1", len(items))
	}

	item := items[0]
	if item.ActualAmount.Cents != 150000 {
		t.Errorf("ActualAmount = %d, want 150000", item.ActualAmount.Cents)
	}
	if item.TotalPaid.Cents != 100000 {
		t.Errorf("TotalPaid = %d, want 100000", item.TotalPaid.Cents)
	}
	if item.DueAmount.Cents != 50000 {
		t.Errorf("DueAmount = %d, want 50000", item.DueAmount.Cents)
	}
	if item.Credit.Cents != 0 {
		t.Errorf("Credit = %d, want 0", item.Credit.Cents)
	}
}

func TestAnalyzeOverpaymentSurfacesCredit(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "tuition",
		Amount:     cents(50000),
		ActiveFrom: date(2026, time.January, 1),
		Recurring:  true,
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", EnrolledAt: date(2026, time.January, 1)})
	env.mustInsertPayment(t, "s-1", "tuition", 160000, core.Period{Year: 2026, Month: 1})

	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.March, 15))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	item := items[0]
	if item.DueAmount.Cents != 0 {
		t.Errorf("DueAmount = %d, want 0", item.DueAmount.Cents)
	}
	if item.Credit.Cents != 10000 {
		t.Errorf("Credit = %d, want 10000", item.Credit.Cents)
	}
}

func TestAnalyzeDefinitionOrder(t *testing.T) {
	env := newTestEnv(t)
	for _, feeID := range []string{"admission", "tuition", "exam"} {
		env.mustCreateFee(t, core.FeeSetting{
			FeeID:      feeID,
			Amount:     cents(10000),
			ActiveFrom: date(2026, time.January, 1),
		})
	}
	env.mustPutStudent(t, core.Student{StudentID: "s-1", EnrolledAt: date(2026, time.January, 1)})

	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.June, 1))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	var got []string
	for _, item := range items {
		got = append(got, item.FeeID)
	}
	want := []string{"admission", "tuition", "exam"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Analyze() order = %v, want %v", got, want)
	}
}

func TestAnalyzeSkipsNotYetActiveAndOutOfScope(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "tuition",
		Amount:     cents(50000),
		ActiveFrom: date(2026, time.January, 1),
		Recurring:  true,
	})
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "next-year",
		Amount:     cents(60000),
		ActiveFrom: date(2027, time.January, 1),
		Recurring:  true,
	})
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "other-class",
		Amount:     cents(15000),
		ClassScope: "c-9",
		ActiveFrom: date(2026, time.January, 1),
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", ClassID: "c-5", EnrolledAt: date(2026, time.January, 1)})

	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.June, 1))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(items) != 1 || items[0].FeeID != "tuition" {
		t.Errorf("Analyze() = %+v, want only tuition", items)
	}
}

func TestAnalyzeExpiredWindowKeepsOutstandingBalance(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "term-fee",
		Amount:     cents(20000),
		ActiveFrom: date(2026, time.January, 1),
		ActiveTo:   date(2026, time.March, 31),
		Recurring:  true,
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", EnrolledAt: date(2026, time.January, 1)})
	env.mustInsertPayment(t, "s-1", "term-fee", 20000, core.Period{Year: 2026, Month: 1})

	// Well past the window end, the unpaid months still show as due.
	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.August, 1))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Analyze() returned %d items, want 1", len(items))
	}
	if items[0].DueAmount.Cents != 40000 {
		t.Errorf("DueAmount after window end = %d, want 40000", items[0].DueAmount.Cents)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "tuition",
		Amount:     cents(50000),
		ActiveFrom: date(2026, time.January, 1),
		Recurring:  true,
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", EnrolledAt: date(2026, time.January, 1)})
	env.mustInsertPayment(t, "s-1", "tuition", 70000, core.Period{Year: 2026, Month: 1})

	asOf := date(2026, time.April, 10)
	first, err := env.engine.Analyze(context.Background(), "s-1", asOf)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, err := env.engine.Analyze(context.Background(), "s-1", asOf)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Analyze() diverged: %+v vs %+v", first, second)
	}
}

func TestAnalyzeUnknownStudent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Analyze(context.Background(), "ghost", date(2026, time.June, 1))
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Analyze() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteFeeSettingPreservesLedger(t *testing.T) {
	env := newTestEnv(t)
	env.mustCreateFee(t, core.FeeSetting{
		FeeID:      "old-fee",
		Amount:     cents(10000),
		ActiveFrom: date(2026, time.January, 1),
	})
	env.mustPutStudent(t, core.Student{StudentID: "s-1", EnrolledAt: date(2026, time.January, 1)})
	env.mustInsertPayment(t, "s-1", "old-fee", 10000, core.Period{Year: 2026, Month: 1})

	if err := env.store.DeleteFeeSetting(context.Background(), "old-fee"); err != nil {
		t.Fatalf("DeleteFeeSetting() error = %v", err)
	}

	txs, err := env.store.Query(context.Background(), "s-1", "old-fee")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("Query() after fee deletion returned %d entries, want 1", len(txs))
	}

	// The deleted head no longer shows in analysis, but history is intact.
	items, err := env.engine.Analyze(context.Background(), "s-1", date(2026, time.June, 1))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Analyze() after fee deletion = %+v, want no items", items)
	}
}

func TestSumPaidSubtractsReversals(t *testing.T) {
	txs := []core.Transaction{
		{ID: 1, AmountPaid: cents(50000)},
		{ID: 2, AmountPaid: cents(20000)},
		{ID: 3, AmountPaid: cents(20000), ReversalOf: 2},
	}
	if got := core.SumPaid(txs); got.Cents != 50000 {
		t.Errorf("SumPaid() = %d, want 50000", got.Cents)
	}
}
