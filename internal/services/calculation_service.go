package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ecocalc/internal/cache"
	"ecocalc/internal/core"
	applog "ecocalc/internal/log"
	"ecocalc/internal/storage"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100

	statsCacheKey = "usage_stats"
)

// Publisher announces stored calculations to downstream consumers.
type Publisher interface {
	PublishCalculationCreated(ctx context.Context, r core.CalculationResult) error
	Close() error
}

// HealthStatus is the liveness payload.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CalculationService orchestrates calculations across storage and AMQP
type CalculationService struct {
	store      storage.Repository
	publisher  Publisher
	calculator *core.Calculator
	stats      cache.Cache[core.UsageStats]
	now        func() time.Time

	// statsMu guards statsGen, which Calculate bumps so that a Stats call
	// started before a write never caches its older snapshot.
	statsMu  sync.Mutex
	statsGen uint64
}

type Option func(*CalculationService)

// WithCalculator replaces the default calculator, mainly for deterministic IDs and dates.
func WithCalculator(c *core.Calculator) Option {
	return func(s *CalculationService) { s.calculator = c }
}

// WithStatsCache caches usage statistics until the next calculation.
func WithStatsCache(c cache.Cache[core.UsageStats]) Option {
	return func(s *CalculationService) { s.stats = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *CalculationService) { s.now = now }
}

// NewCalculationService wires the service. publisher may be nil.
func NewCalculationService(store storage.Repository, publisher Publisher, opts ...Option) *CalculationService {
	s := &CalculationService{
		store:      store,
		publisher:  publisher,
		calculator: core.NewCalculator(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate validates the input, stores the result and publishes it.
func (s *CalculationService) Calculate(ctx context.Context, in core.CalculationInput) (core.CalculationResult, error) {
	if err := in.Validate(); err != nil {
		return core.CalculationResult{}, err
	}

	result := s.calculator.Calculate(in)
	if err := s.store.SaveCalculation(ctx, core.NewRecord(result, in)); err != nil {
		return core.CalculationResult{}, fmt.Errorf("save calculation: %w", err)
	}

	s.invalidateStats()

	// The record is durable at this point; a broker outage must not fail the request.
	if err := s.publish(ctx, result); err != nil {
		slog.ErrorContext(ctx, "Failed to publish calculation created message",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldCalculationID, result.ID,
			applog.FieldErrorType, applog.ErrorTypeNetwork,
			applog.FieldError, err)
	}

	return result, nil
}

func (s *CalculationService) invalidateStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	if s.stats != nil {
		s.stats.Purge()
	}
}

// cacheStats stores stats computed at generation gen unless a write happened since.
func (s *CalculationService) cacheStats(gen uint64, stats core.UsageStats) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats != nil && s.statsGen == gen {
		s.stats.Set(statsCacheKey, stats)
	}
}

func (s *CalculationService) publish(ctx context.Context, r core.CalculationResult) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping calculation message")
		return nil
	}
	return s.publisher.PublishCalculationCreated(ctx, r)
}

// History returns the most recent calculations, newest first.
func (s *CalculationService) History(ctx context.Context, limit int) ([]core.CalculationResult, error) {
	if limit < 1 {
		return nil, core.NewValidationError("Limit must be at least 1.")
	}
	if limit > MaxHistoryLimit {
		return nil, core.NewValidationError("Limit cannot exceed %d records.", MaxHistoryLimit)
	}

	records, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}

	out := make([]core.CalculationResult, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.CalculationResult)
	}
	return out, nil
}

// Calculation returns one stored calculation.
func (s *CalculationService) Calculation(ctx context.Context, id string) (core.CalculationResult, error) {
	rec, err := s.store.GetCalculation(ctx, id)
	if err != nil {
		return core.CalculationResult{}, fmt.Errorf("get calculation %s: %w", id, err)
	}
	return rec.CalculationResult, nil
}

// Stats combines the usage summary with per-scope averages.
func (s *CalculationService) Stats(ctx context.Context) (core.UsageStats, error) {
	if s.stats != nil {
		if cached, ok := s.stats.Get(statsCacheKey); ok {
			return cached, nil
		}
	}

	s.statsMu.Lock()
	gen := s.statsGen
	s.statsMu.Unlock()

	var (
		summary core.UsageSummary
		avg     core.ScopeAverages
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.store.Summary(gctx)
		if err != nil {
			return fmt.Errorf("usage summary: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		avg, err = s.store.ScopeAverages(gctx)
		if err != nil {
			return fmt.Errorf("scope averages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.UsageStats{}, err
	}

	stats := core.NewUsageStats(summary, avg)
	s.cacheStats(gen, stats)
	return stats, nil
}

// Health reports liveness without touching dependencies.
func (s *CalculationService) Health() HealthStatus {
	return HealthStatus{Status: "ok", Timestamp: s.now().UTC()}
}

// Ready reports whether the store answers.
func (s *CalculationService) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage not ready: %w", err)
	}
	return nil
}

// Close closes both storage and AMQP connections
func (s *CalculationService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close calculation service: %w", errors.Join(errs...))
	}

	return nil
}
