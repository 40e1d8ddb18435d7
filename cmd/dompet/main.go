package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dompet/internal/cli"
	dlog "dompet/internal/log"
	"dompet/internal/remote"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(dlog.ComponentCLI, os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger.Error("Configuration validation failed", dlog.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger.WithComponent(dlog.ComponentStorage).Logger)
	if err != nil {
		logger.Error("Failed to initialize", dlog.FieldError, err)
		os.Exit(1)
	}

	err = run(ctx, app, os.Args[1:], os.Stdout)
	if cerr := app.Close(); cerr != nil {
		logger.Warn("Failed to close backend", dlog.FieldError, cerr)
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		if remote.IsTimeout(err) {
			fmt.Fprintln(os.Stderr, "the backend did not answer in time; REQUEST_TIMEOUT raises the limit")
		}
		os.Exit(1)
	}
}
