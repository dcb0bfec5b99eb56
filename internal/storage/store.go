package storage

import (
	"context"
	"errors"
	"time"

	"ecocalc/internal/core"
)

// ErrNotFound is returned when a calculation does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the persistence contract shared by the SQL and memory stores.
type Repository interface {
	SaveCalculation(ctx context.Context, rec core.CalculationRecord) error
	ListRecent(ctx context.Context, limit int) ([]core.CalculationRecord, error)
	GetCalculation(ctx context.Context, id string) (core.CalculationRecord, error)
	Summary(ctx context.Context) (core.UsageSummary, error)
	ScopeAverages(ctx context.Context) (core.ScopeAverages, error)
	PendingExports(ctx context.Context, limit int) ([]core.CalculationRecord, error)
	MarkExported(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context) error
	Close() error
}

var _ Repository = (*SQLRepository)(nil)
