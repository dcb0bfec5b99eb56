package backend

import (
	"context"
	"fmt"
	"log/slog"

	"ecocalc/internal/amqp"
	"ecocalc/internal/services"
	"ecocalc/internal/storage"
	"ecocalc/internal/storage/memory"
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
	store, err := f.OpenStore(ctx, config)
	if err != nil {
		return nil, err
	}

	// A missing broker degrades to no events rather than failing startup.
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}
	if publisher != nil && config.Type == MemoryBackend {
		f.logger.WarnContext(ctx, "Publishing events from the memory backend; no worker can read this store")
	}

	svc := services.NewCalculationService(store, publisher, config.ServiceOptions...)

	return &BackendResult{
		Service: svc,
		Store:   store,
		Cleanup: svc.Close,
	}, nil
}

// OpenStore implements Factory.OpenStore
func (f *DefaultFactory) OpenStore(ctx context.Context, config Config) (storage.Repository, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres backend")
		return repo, nil
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
