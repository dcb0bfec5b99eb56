package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestSetupLoggerLevels(t *testing.T) {
	logger := SetupLogger("debug", "test")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}
	if logger.Component() != "test" {
		t.Fatalf("unexpected component %q", logger.Component())
	}

	logger = SetupLogger("bogus", "test")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("unknown levels fall back to info")
	}
}

func TestGracefulShutdownOnParentCancel(t *testing.T) {
	logger := SetupLogger("error", "test")
	parent, cancel := context.WithCancel(context.Background())

	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(parent, logger, time.Second, func(ctx context.Context) error {
		close(cleaned)
		return nil
	})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ctx.Err() == nil {
		t.Fatal("context should be cancelled")
	}
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup was not called")
	}
	WaitForShutdown(ctx, done)
}
