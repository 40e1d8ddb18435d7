package main

import (
	"context"
	"errors"
	"os"
	"time"

	"dompet/internal/cli"
	dlog "dompet/internal/log"
	"dompet/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(dlog.ComponentWorker, os.Getenv("LOG_LEVEL"))
	logger.Info("Starting dompet-worker")

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		logger.Error("Configuration validation failed", dlog.FieldError, err)
		os.Exit(1)
	}

	app, err := cli.NewApp(context.Background(), cfg, logger.WithComponent(dlog.ComponentStorage).Logger)
	if err != nil {
		logger.Error("Failed to initialize", dlog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	syncWorker := worker.NewSyncWorker(app.Reconciler, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		syncWorker.StopSchedule()
		if err := app.Reconciler.Stop(shutdownCtx); err != nil {
			logger.Operation(shutdownCtx, dlog.OpShutdown, err)
		}
	})

	// On startup, replay anything queued while the worker was down
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", dlog.FieldError, err)
	}

	if err := app.Reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", dlog.FieldError, err)
		os.Exit(1)
	}
	if err := syncWorker.StartSchedule(ctx); err != nil {
		logger.Error("Failed to schedule replays", dlog.FieldError, err)
		os.Exit(1)
	}

	if notifier := app.Backend.Notifier; notifier != nil {
		go func() {
			err := notifier.ConsumePendingWrites(ctx, syncWorker.HandlePendingWrite)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", dlog.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled - relying on scheduled replays", dlog.FieldSyncEnabled, false)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
