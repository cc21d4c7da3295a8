package main

import (
	"context"
	"fmt"
	"os"

	"costbook/internal/cli"
	"costbook/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(log.Default())
	// Keep stdout for command output.
	cfg.LogFormat, cfg.LogLevel = "text", "warn"
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentCLI)

	// A one-shot command gains nothing from the snapshot cache.
	cfg.SnapshotCacheTTL = 0
	res := cli.InitBackend(context.Background(), logger, cfg)

	root := cli.NewRootCmd(&cli.App{Projects: res.Projects, Reports: res.Reports})
	err := root.Execute()

	if res.Processor != nil {
		// Changes made by this command would otherwise never reach the sheet.
		res.Processor.ProcessPending(context.Background())
	}
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Backend cleanup error", log.FieldError, cerr)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
