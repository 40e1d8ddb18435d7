// Package cli provides the initialization shared by cmd/dompet and
// cmd/dompet-worker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dompet/internal/backend"
	"dompet/internal/config"
	"dompet/internal/export"
	"dompet/internal/export/sheets"
	"dompet/internal/ledger"
	dlog "dompet/internal/log"
	"dompet/internal/outbox"
	"dompet/internal/remote"
	"dompet/internal/session"
)

// SetupLogger initializes structured logging for the given component at the
// configured level and sets it as the default logger.
func SetupLogger(component, level string) *dlog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	logger := dlog.New(dlog.Config{Level: lvl, Component: component, Output: os.Stderr})
	dlog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App bundles everything a command needs.
type App struct {
	Config     *config.Config
	Session    *session.Session
	Remote     *remote.Client
	Queue      *outbox.Queue
	Ledger     *ledger.Service
	Reconciler *outbox.Reconciler
	Backend    *backend.BackendResult
}

// NewApp wires the mirror, session, remote client, outbox and ledger service.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	sess := session.New(res.Store)
	client := remote.NewClient(remote.Config{
		BaseURL:        cfg.BaseURL,
		Timeout:        cfg.RequestTimeout,
		WalletsTimeout: cfg.WalletsTimeout,
		LoansTimeout:   cfg.LoansTimeout,
	}, sess)

	queue := outbox.NewQueue(res.Store)
	if res.Notifier != nil {
		queue = queue.WithNotifier(res.Notifier)
	}

	return &App{
		Config:  cfg,
		Session: sess,
		Remote:  client,
		Queue:   queue,
		Ledger:  ledger.NewService(client, res.Store, sess, queue),
		// The worker schedules passes with cron, so the loop only reacts to Trigger.
		Reconciler: outbox.NewReconciler(res.Store, queue, client, outbox.ReconcilerConfig{
			MaxRetries: cfg.SyncMaxRetries,
		}),
		Backend: res,
	}, nil
}

// Exporter returns the Google Sheets exporter when configured, otherwise a
// CSV writer into the export directory.
func (a *App) Exporter(ctx context.Context, useSheets bool) (export.Exporter, error) {
	if !useSheets {
		return export.NewCSVWriter(a.Config.ExportDir), nil
	}
	if !a.Config.SheetsEnabled() {
		return nil, fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
	}
	return sheets.New(ctx, sheets.Config{
		SpreadsheetID:   a.Config.GoogleSpreadsheetID,
		SheetName:       a.Config.GoogleSheetName,
		CredentialsJSON: a.Config.GoogleServiceAccountJSON,
		CredentialsFile: a.Config.GoogleServiceAccountFile,
	})
}

// Close releases the mirror and the AMQP connection.
func (a *App) Close() error {
	if a.Backend == nil || a.Backend.Cleanup == nil {
		return nil
	}
	return a.Backend.Cleanup()
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
