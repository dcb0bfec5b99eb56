package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"ecocalc/internal/backend"
	"ecocalc/internal/cache"
	"ecocalc/internal/cli"
	"ecocalc/internal/core"
	apphttp "ecocalc/internal/http"
	applog "ecocalc/internal/log"
	"ecocalc/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	// Stats are recomputed at most once per TTL and dropped on every calculation.
	statsCache := cache.NewLRUCache[core.UsageStats](1, cfg.StatsCacheTTL)
	cacheManager := cache.NewManager()
	if cfg.StatsCacheTTL > 0 {
		cacheManager.Register(statsCache)
		cacheManager.StartCleanup(cfg.StatsCacheTTL)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	bcfg.ServiceOptions = []services.Option{services.WithStatsCache(statsCache)}

	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}, res.Service)

	parent, fail := context.WithCancel(context.Background())
	defer fail()

	ctx, done := cli.GracefulShutdown(parent, logger, cfg.ShutdownTimeout, func(ctx context.Context) error {
		shutdownErr := srv.Shutdown(ctx)
		cacheManager.Stop()

		total, limited, suspicious := srv.RequestStats()
		logger.Info("HTTP server stopped",
			"requests", total,
			"rate_limited", limited,
			"suspicious", suspicious)

		return errors.Join(shutdownErr, res.Cleanup())
	})

	go func() {
		logger.Info("Starting ecocalc server",
			"port", cfg.Port,
			applog.FieldBackend, cfg.DataBackend,
			"amqp_enabled", cfg.AMQPURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			fail()
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
