package backend

import (
	"context"
	"fmt"
	"log/slog"

	"bursar/internal/amqp"
	"bursar/internal/services"
	"bursar/internal/storage"
	"bursar/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// Initialize AMQP client (optional)
	var publisher services.ReceiptPublisher
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without receipt events", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	engine, collection := wireServices(repo, publisher, config.OverpaymentPolicy)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	cleanup := func() error {
		if amqpClient != nil {
			amqpClient.Close()
		}
		return repo.Close()
	}

	return &BackendResult{
		Store:      repo,
		Engine:     engine,
		Collection: collection,
		Cleanup:    cleanup,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store := memory.New()
	engine, collection := wireServices(store, nil, config.OverpaymentPolicy)

	f.logger.Info("Initialized memory backend")

	return &BackendResult{
		Store:      store,
		Engine:     engine,
		Collection: collection,
		Cleanup:    nil, // No cleanup needed for memory backend
	}, nil
}

func wireServices(store Store, publisher services.ReceiptPublisher, policy services.OverpaymentPolicy) (*services.ReconciliationEngine, *services.CollectionService) {
	resolver := services.NewOverrideResolver(store, store)
	accrual := services.NewAccrualCalculator(store, store, resolver)
	engine := services.NewReconciliationEngine(store, store, store, accrual)
	collection := services.NewCollectionService(store, store, engine, publisher, policy)
	return engine, collection
}
