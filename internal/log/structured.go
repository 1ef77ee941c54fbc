package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger emits the fixed-shape records the HTTP server and the
// collection service share: request start and end lines, plus committed
// payment batches. Keeping the shapes here means dashboards match no
// matter which handler produced the line.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPStart records an incoming request before the handler runs.
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd records a completed request. Client errors surface as
// warnings, server errors as errors.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.logger.WithComponent(ComponentHTTP).log(ctx, level, "HTTP request completed", fields.ToSlice())
}

// LogPaymentCommitted records a successfully committed payment batch with
// the ledger entry ids it produced.
func (sl *StructuredLogger) LogPaymentCommitted(ctx context.Context, studentID string, txIDs []int64, totalCents int64) {
	fields := NewFields().
		WithOperation(OpCommit).
		ToSlice()
	fields = append(fields, FieldStudentID, studentID, FieldTransactionID, txIDs, FieldAmountCents, totalCents)

	sl.logger.WithComponent(ComponentCollection).InfoContext(ctx, "Payment batch committed", fields...)
}
