package main

import (
	"context"
	"errors"
	"os"
	"time"

	"costbook/internal/cli"
	"costbook/internal/log"
	"costbook/internal/services"
	"costbook/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	logger.Info("Starting costbook-worker")

	if cfg.DataBackend != "sqlite" {
		logger.Error("The worker reads the shared SQLite database; set DATA_BACKEND=sqlite", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() || !cfg.SheetsEnabled() {
		logger.Error("The worker needs both AMQP_URL and GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	// Another process writes the database, so snapshots are never cached here.
	cfg.SnapshotCacheTTL = 0
	res := cli.InitBackend(context.Background(), logger, cfg)
	if res.AMQP == nil {
		logger.Error("AMQP broker unreachable")
		_ = res.Cleanup()
		os.Exit(1)
	}

	export := services.NewReportExport(res.Reports, res.Exporter, logger)
	reportWorker := worker.NewReportWorker(res.Repository, export, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	// On startup, re-export everything that may have changed while the worker was down
	logger.Info("Performing startup export...")
	if err := reportWorker.ExportAll(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err)
		// Don't exit - continue with normal operation
	}

	go func() {
		if err := res.AMQP.ConsumeProjectChanges(ctx, reportWorker.HandleProjectChanged); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}
	}()

	// Periodic full export for any missed messages
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := reportWorker.ExportAll(ctx); err != nil {
					logger.Error("Periodic export failed", log.FieldError, err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
