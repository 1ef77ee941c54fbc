// Package log carries the structured logging conventions shared by the
// bursar binaries: a component attribute on every record plus the field
// names in fields.go, so ledger writes, remittance exports, and HTTP
// traffic can be told apart in a single stream.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger stamps a component name onto every record it emits. The name is
// attached per call rather than baked into the handler, so WithComponent
// can rebind a child logger without duplicating attributes.
type Logger struct {
	*slog.Logger
	component string
}

// Config controls handler construction in New.
type Config struct {
	Level   slog.Level
	Handler slog.Handler
}

// DefaultConfig logs text to stdout at Info level.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo}
}

// New builds a Logger for the application root component. Supply a
// Handler to capture records in tests; otherwise text goes to stdout.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return &Logger{Logger: slog.New(handler), component: ComponentApp}
}

// WithComponent rebinds the logger to another component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	l.Logger.Log(ctx, level, msg, append([]any{FieldComponent, l.component}, args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}
