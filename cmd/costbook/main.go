package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"costbook/internal/cli"
	apphttp "costbook/internal/http"
	"costbook/internal/log"
	"costbook/internal/middleware/ratelimit"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg)

	res := cli.InitBackend(context.Background(), logger, cfg)

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Projects:  res.Projects,
		Reports:   res.Reports,
		Logger:    logger,
		Ready:     res.Ready,
		RateLimit: rl,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if res.Processor != nil {
			if err := res.Processor.Stop(shutdownCtx); err != nil {
				logger.Error("Export processor shutdown error", log.FieldError, err)
			}
			// Flush whatever changed since the last poll.
			res.Processor.ProcessPending(shutdownCtx)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if res.Processor != nil {
		if err := res.Processor.Start(ctx); err != nil {
			logger.Error("Failed to start export processor", log.FieldError, err)
			os.Exit(1)
		}
	}

	logger.Info("Starting costbook server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"currency", cfg.Currency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
