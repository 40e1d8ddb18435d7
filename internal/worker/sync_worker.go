// Package worker drives outbox replays from AMQP notifications and a cron
// schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"dompet/internal/amqp"
	dlog "dompet/internal/log"
	"dompet/internal/outbox"
	"dompet/internal/remote"
)

// Replayer is the part of the reconciler the worker drives.
type Replayer interface {
	ReplayAll(ctx context.Context) (outbox.Result, error)
	Trigger()
}

// SyncWorker replays pending writes when notified and on a fixed schedule.
type SyncWorker struct {
	replayer Replayer
	interval time.Duration
	cron     *cron.Cron
}

func NewSyncWorker(r Replayer, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		replayer: r,
		interval: interval,
		cron:     cron.New(),
	}
}

// HandlePendingWrite runs a replay pass for a queued write. An unreachable
// backend is not an error: the entry stays queued for the next scheduled pass
// and redelivering the message would only spin.
func (w *SyncWorker) HandlePendingWrite(ctx context.Context, msg *amqp.PendingWriteMessage) error {
	slog.InfoContext(ctx, "Processing pending write notification",
		dlog.FieldID, msg.ID,
		dlog.FieldKind, msg.Kind)

	res, err := w.replayer.ReplayAll(ctx)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Replay pass completed", replayFields(res).ToSlice()...)
		return nil
	case errors.Is(err, remote.ErrNetwork), errors.Is(err, remote.ErrUnauthenticated):
		slog.WarnContext(ctx, "Backend not available, keeping writes queued",
			replayFields(res).WithError(err).ToSlice()...)
		return nil
	default:
		return fmt.Errorf("replay pending writes: %w", err)
	}
}

// StartupSyncCheck replays anything left over from before the worker started.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	res, err := w.replayer.ReplayAll(ctx)
	if err != nil && !errors.Is(err, remote.ErrNetwork) {
		return fmt.Errorf("startup replay: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync check completed",
		replayFields(res).WithOperation(dlog.OpStartup).ToSlice()...)
	return nil
}

func replayFields(res outbox.Result) dlog.LogFields {
	return dlog.NewFields().WithReplay(res.Replayed, res.Abandoned, res.Remaining)
}

// StartSchedule triggers a replay every interval until StopSchedule.
func (w *SyncWorker) StartSchedule(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", w.interval)
	if _, err := w.cron.AddFunc(spec, w.replayer.Trigger); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	w.cron.Start()
	slog.InfoContext(ctx, "Scheduled periodic replay", "schedule", spec)
	return nil
}

// StopSchedule stops the scheduler and waits for a running job.
func (w *SyncWorker) StopSchedule() {
	<-w.cron.Stop().Done()
}
