package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bursar/internal/services"
	"bursar/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	resolver := services.NewOverrideResolver(store, store)
	accrual := services.NewAccrualCalculator(store, store, resolver)
	engine := services.NewReconciliationEngine(store, store, store, accrual)
	collection := services.NewCollectionService(store, store, engine, nil, services.OverpayReject)
	srv := NewServer(":0", store, engine, collection)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func seedTuition(t *testing.T, srv *Server) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/fee-settings", map[string]any{
		"feeId":       "tuition",
		"description": "Monthly tuition",
		"amount":      "500.00",
		"activeFrom":  "2020-01-01",
		"canOverride": true,
		"recurring":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed tuition: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPut, "/students/s-1", map[string]any{
		"classId":    "7A",
		"enrolledAt": "2020-01-01",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed student: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestFeeSettingLifecycle(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/fee-settings/tuition", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d body %s", rec.Code, rec.Body.String())
	}
	var got feeSettingJSON
	decodeInto(t, rec, &got)
	if got.Amount != "500.00" || !got.Recurring || got.Position == 0 {
		t.Errorf("unexpected setting: %+v", got)
	}

	rec = doJSON(t, srv, http.MethodPut, "/fee-settings/tuition", map[string]any{
		"feeId":       "tuition",
		"description": "Monthly tuition",
		"amount":      "550.00",
		"activeFrom":  "2026-01-01",
		"canOverride": true,
		"recurring":   true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &got)
	if got.Amount != "550.00" {
		t.Errorf("updated amount = %s, want 550.00", got.Amount)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/fee-settings/tuition", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/fee-settings/tuition", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestCreateFeeSettingValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty fee id", map[string]any{"feeId": "", "amount": "10.00"}},
		{"bad amount", map[string]any{"feeId": "exam", "amount": "ten"}},
		{"negative amount", map[string]any{"feeId": "exam", "amount": "-5.00"}},
		{"unknown field", map[string]any{"feeId": "exam", "amount": "10.00", "color": "red"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/fee-settings", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDuplicateFeeSettingConflict(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/fee-settings", map[string]any{
		"feeId":  "tuition",
		"amount": "100.00",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestOverrideLifecycle(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/custom-student-fees", map[string]any{
		"studentId":     "s-1",
		"feeId":         "tuition",
		"newAmount":     "300.00",
		"effectiveFrom": "2026-02-01",
		"reason":        "scholarship",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put override: status %d body %s", rec.Code, rec.Body.String())
	}
	var got overrideJSON
	decodeInto(t, rec, &got)
	if got.NewAmount != "300.00" || !got.Active {
		t.Errorf("unexpected override: %+v", got)
	}

	rec = doJSON(t, srv, http.MethodGet, "/custom-student-fees?studentId=s-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []overrideJSON
	decodeInto(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list length = %d, want 1", len(list))
	}

	rec = doJSON(t, srv, http.MethodDelete, "/custom-student-fees/s-1/tuition", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: status %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/custom-student-fees?studentId=s-1", nil)
	decodeInto(t, rec, &list)
	if len(list) != 1 || list[0].Active {
		t.Errorf("override after deactivate: %+v", list)
	}
}

func TestUpdateOverrideInPlace(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/custom-student-fees", map[string]any{
		"studentId":      "s-1",
		"feeId":          "tuition",
		"newAmountCents": 30000,
		"effectiveFrom":  "2026-02-01",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, "/custom-student-fees/s-1/tuition", map[string]any{
		"newAmountCents": 25000,
		"effectiveFrom":  "2026-02-01",
		"active":         true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	var got overrideJSON
	decodeInto(t, rec, &got)
	if got.NewAmountCents != 25000 || got.NewAmount != "250.00" {
		t.Errorf("unexpected override after update: %+v", got)
	}

	// The response must reflect the stored row, not the request body.
	rec = doJSON(t, srv, http.MethodGet, "/custom-student-fees?studentId=s-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var listed []overrideJSON
	decodeInto(t, rec, &listed)
	if len(listed) != 1 {
		t.Fatalf("list: got %d overrides, want 1", len(listed))
	}
	if listed[0] != got {
		t.Errorf("update response %+v differs from stored override %+v", got, listed[0])
	}

	// Updating an override that was never created is a 404.
	rec = doJSON(t, srv, http.MethodPut, "/custom-student-fees/s-9/tuition", map[string]any{
		"newAmountCents": 25000,
		"effectiveFrom":  "2026-02-01",
		"active":         true,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("update missing: status %d, want 404", rec.Code)
	}
}

func TestPutOverrideOnLockedFee(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/fee-settings", map[string]any{
		"feeId":       "exam",
		"amount":      "120.00",
		"canOverride": false,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/custom-student-fees", map[string]any{
		"studentId":     "s-1",
		"feeId":         "exam",
		"newAmount":     "60.00",
		"effectiveFrom": "2026-01-01",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestFeeAnalysisEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/fee-settings", map[string]any{
		"feeId":       "tuition",
		"description": "Monthly tuition",
		"amount":      "500.00",
		"activeFrom":  "2026-01-01",
		"canOverride": true,
		"recurring":   true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPut, "/students/s-1", map[string]any{
		"classId":    "7A",
		"enrolledAt": "2026-01-01",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put student: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/fee-analysis/s-1?asOf=2026-03-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var items []analysisItemJSON
	decodeInto(t, rec, &items)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	// Jan, Feb, Mar accrued at 500.00 each.
	if items[0].ActualAmount != "1500.00" || items[0].DueAmount != "1500.00" || items[0].TotalPaid != "0.00" {
		t.Errorf("unexpected analysis row: %+v", items[0])
	}

	if rec := doJSON(t, srv, http.MethodGet, "/fee-analysis/nobody", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown student: status %d, want 404", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/fee-analysis/s-1?asOf=soon", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad asOf: status %d, want 422", rec.Code)
	}
}

func TestCommitAndLedgerList(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/fee-collections", map[string]any{
		"studentId": "s-1",
		"items": []map[string]any{
			{"feeId": "tuition", "amount": "500.00", "paymentMethod": "cash", "period": "2026-01"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit: status %d body %s", rec.Code, rec.Body.String())
	}
	var result services.CommitResult
	decodeInto(t, rec, &result)
	if !result.Success || len(result.TransactionIDs) != 1 {
		t.Fatalf("unexpected commit result: %+v", result)
	}

	rec = doJSON(t, srv, http.MethodGet, "/students/s-1/transactions?feeId=tuition", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list transactions: status %d", rec.Code)
	}
	var txs []transactionJSON
	decodeInto(t, rec, &txs)
	if len(txs) != 1 || txs[0].AmountPaid != "500.00" || txs[0].Period != "2026-01" {
		t.Errorf("unexpected transactions: %+v", txs)
	}

	if rec := doJSON(t, srv, http.MethodGet, "/students/nobody/transactions", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown student transactions: status %d, want 404", rec.Code)
	}
}

func TestCommitOverpaymentConflict(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	// Far more than any plausible accrued due.
	rec := doJSON(t, srv, http.MethodPost, "/fee-collections", map[string]any{
		"studentId": "s-1",
		"items": []map[string]any{
			{"feeId": "tuition", "amount": "9999999.00", "paymentMethod": "cash", "period": "2026-01"},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
	var resp errorResponse
	decodeInto(t, rec, &resp)
	if resp.Error == "" || resp.Details == nil {
		t.Errorf("conflict response missing details: %+v", resp)
	}
}

func TestCommitRejectsUnknownFee(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/fee-collections", map[string]any{
		"studentId": "s-1",
		"items": []map[string]any{
			{"feeId": "yacht-club", "amount": "10.00", "paymentMethod": "cash", "period": "2026-01"},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestReverseEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/fee-collections", map[string]any{
		"studentId": "s-1",
		"items": []map[string]any{
			{"feeId": "tuition", "amount": "500.00", "paymentMethod": "bank-transfer", "period": "2026-01"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit: status %d body %s", rec.Code, rec.Body.String())
	}
	var result services.CommitResult
	decodeInto(t, rec, &result)
	txID := result.TransactionIDs[0]

	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/fee-collections/%d/reverse", txID), map[string]any{
		"reason": "duplicate entry",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reverse: status %d body %s", rec.Code, rec.Body.String())
	}
	var reversal transactionJSON
	decodeInto(t, rec, &reversal)
	if reversal.ReversalOf != txID || reversal.Description != "duplicate entry" {
		t.Errorf("unexpected reversal: %+v", reversal)
	}

	// Second reversal of the same entry conflicts.
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/fee-collections/%d/reverse", txID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("double reverse: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/fee-collections/999/reverse", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown tx: status %d, want 404", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/fee-collections/banana/reverse", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad tx id: status %d, want 422", rec.Code)
	}
}

func TestSecurityHeadersAndNoStore(t *testing.T) {
	srv := newTestServer(t)
	seedTuition(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/fee-settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 61 should be limited")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("different client should not be limited")
	}
}
