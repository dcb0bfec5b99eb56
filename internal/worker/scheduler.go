package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the periodic export sweep
type SchedulerConfig struct {
	// PollInterval is how often to look for unexported calculations (default: 1m)
	PollInterval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{PollInterval: time.Minute}
}

// Scheduler runs ProcessPending on a ticker. It recovers calculations whose
// AMQP events were lost or arrived while the spreadsheet was unavailable.
type Scheduler struct {
	worker *ExportWorker
	config SchedulerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(worker *ExportWorker, config SchedulerConfig) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSchedulerConfig().PollInterval
	}
	return &Scheduler{worker: worker, config: config}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("export scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Export scheduler started", "poll_interval", s.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.worker.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export sweep failed", "error", err)
			}
		}
	}
}
