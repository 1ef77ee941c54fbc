package log

// Field names shared across the bursar log stream. Handlers, the
// collection service, and the export worker all use these so a single
// query can follow a payment from HTTP request to remittance row.
const (
	FieldComponent  = "component"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldStudentID     = "student_id"
	FieldFeeID         = "fee_id"
	FieldPeriod        = "period"
	FieldAmountCents   = "amount_cents"
	FieldTransactionID = "transaction_id"
	FieldSheetsRef     = "sheets_ref"
)

// Component names, one per subsystem.
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentCollection = "collection"
	ComponentWorker     = "worker"
)

// Operation names for the FieldOperation attribute.
const (
	OpAnalyze = "analyze"
	OpCommit  = "commit"
	OpReverse = "reverse"
	OpExport  = "export"
)

// LogFields accumulates attributes before they go to slog.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice flattens the fields into slog's alternating key/value form.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
