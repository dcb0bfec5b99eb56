package backend

import (
	"context"

	"ecocalc/internal/services"
	"ecocalc/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired service, its store and a cleanup function
type BackendResult struct {
	Service *services.CalculationService
	Store   storage.Repository
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the store, connects the optional publisher and wires the service
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// OpenStore opens only the store, for processes that do not serve calculations
	OpenStore(ctx context.Context, config Config) (storage.Repository, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQL stores
	SQLiteDBPath string
	DatabaseURL  string

	// AMQP publisher, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// ServiceOptions are passed through to the calculation service
	ServiceOptions []services.Option
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
