package backend

import (
	"context"

	"bursar/internal/services"
)

// Store is the unified persistence interface a backend must provide.
type Store interface {
	services.FeeScheduleStore
	services.OverrideStore
	services.StudentStore
	services.LedgerStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired stores and services plus an optional
// cleanup function.
type BackendResult struct {
	Store      Store
	Engine     *services.ReconciliationEngine
	Collection *services.CollectionService
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP receipt events (optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Collection behaviour
	OverpaymentPolicy services.OverpaymentPolicy
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
