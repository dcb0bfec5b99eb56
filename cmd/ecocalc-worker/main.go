package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ecocalc/internal/amqp"
	"ecocalc/internal/backend"
	"ecocalc/internal/cli"
	applog "ecocalc/internal/log"
	gsheet "ecocalc/internal/sheets/google"
	"ecocalc/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting ecocalc-worker")

	parent, fail := context.WithCancel(context.Background())
	defer fail()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).OpenStore(parent, bcfg)
	if err != nil {
		logger.Error("Failed to open calculation store", "error", err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	exporter, err := gsheet.New(parent, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	if err := exporter.EnsureHeader(parent); err != nil {
		logger.Warn("Failed to write header row", "error", err)
	}

	// Without a broker the worker still exports on every poll.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(parent, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled, exporting on the poll interval only")
	}

	exportWorker := worker.NewExportWorker(store, exporter, cfg.ExportBatchSize)
	scheduler := worker.NewScheduler(exportWorker, worker.SchedulerConfig{PollInterval: cfg.ExportInterval})

	ctx, done := cli.GracefulShutdown(parent, logger, cfg.ShutdownTimeout, func(ctx context.Context) error {
		var errs []error
		errs = append(errs, scheduler.Stop(ctx))
		if amqpClient != nil {
			errs = append(errs, amqpClient.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	})

	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start export scheduler", "error", err)
		fail()
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeCalculationCreated(gctx, exportWorker.HandleCalculationCreated)
		})
	}
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			fail()
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
