package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ecocalc/internal/amqp"
	applog "ecocalc/internal/log"
	"ecocalc/internal/sheets"
	"ecocalc/internal/storage"
)

const DefaultBatchSize = 50

// startupBatches bounds how many batches StartupExportCheck drains.
const startupBatches = 5

// ExportWorker copies stored calculations to a spreadsheet
type ExportWorker struct {
	store     storage.Repository
	exporter  sheets.CalculationExporter
	batchSize int
	now       func() time.Time

	// mu serializes sweeps so a record is never appended twice by concurrent runs.
	mu sync.Mutex
}

// BatchResult counts the outcome of one sweep.
type BatchResult struct {
	Exported int
	Failed   int
}

func NewExportWorker(store storage.Repository, exporter sheets.CalculationExporter, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleCalculationCreated processes one calculation event from AMQP. The
// event only signals new work; the pending set in storage decides what is
// exported, so redelivered events never duplicate rows.
func (w *ExportWorker) HandleCalculationCreated(ctx context.Context, msg *amqp.CalculationCreatedMessage) error {
	slog.InfoContext(ctx, "Processing calculation event",
		"calculation_id", msg.ID,
		"total", msg.Total)

	if _, err := w.store.GetCalculation(ctx, msg.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Calculation not found in storage, dropping event",
				applog.FieldCalculationID, msg.ID,
				applog.FieldErrorType, applog.ErrorTypeNotFound)
			return nil
		}
		return fmt.Errorf("get calculation from storage: %w", err)
	}

	if _, err := w.ProcessPending(ctx); err != nil {
		return fmt.Errorf("process pending exports: %w", err)
	}
	return nil
}

// ProcessPending exports up to one batch of unexported calculations, oldest
// first. Export failures are logged and left pending for the next sweep; only
// storage errors are returned.
func (w *ExportWorker) ProcessPending(ctx context.Context) (BatchResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var res BatchResult
	pending, err := w.store.PendingExports(ctx, w.batchSize)
	if err != nil {
		return res, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	slog.DebugContext(ctx, "Processing pending exports", "count", len(pending))

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ref, err := w.exporter.ExportCalculation(ctx, rec)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to export calculation",
				applog.FieldComponent, applog.ComponentSheets,
				applog.FieldOperation, applog.OpExport,
				applog.FieldCalculationID, rec.ID,
				applog.FieldError, err)
			res.Failed++
			continue
		}

		if err := w.store.MarkExported(ctx, rec.ID, w.now().UTC()); err != nil {
			// The row exists in the sheet; the next sweep will append it again.
			slog.ErrorContext(ctx, "Failed to mark calculation as exported",
				"calculation_id", rec.ID, "sheets_ref", ref, "error", err)
			res.Failed++
			continue
		}

		res.Exported++
		slog.InfoContext(ctx, "Exported calculation",
			applog.FieldOperation, applog.OpExport,
			applog.FieldCalculationID, rec.ID,
			"sheets_ref", ref,
			"total", rec.Total)
	}

	return res, nil
}

// StartupExportCheck drains the backlog left while the worker was down.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	var total BatchResult
	for i := 0; i < startupBatches; i++ {
		res, err := w.ProcessPending(ctx)
		if err != nil {
			return fmt.Errorf("startup export check: %w", err)
		}
		total.Exported += res.Exported
		total.Failed += res.Failed
		// A short batch means the backlog is empty; failures mean the sheet is unhappy.
		if res.Exported+res.Failed < w.batchSize || res.Failed > 0 {
			break
		}
	}

	if total.Exported == 0 && total.Failed == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Startup export completed",
		"exported", total.Exported,
		"errors", total.Failed)
	return nil
}
