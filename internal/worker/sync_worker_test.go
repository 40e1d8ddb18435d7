package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/amqp"
	"dompet/internal/outbox"
	"dompet/internal/remote"
)

type fakeReplayer struct {
	err      error
	res      outbox.Result
	replays  atomic.Int32
	triggers atomic.Int32
}

func (f *fakeReplayer) ReplayAll(context.Context) (outbox.Result, error) {
	f.replays.Add(1)
	return f.res, f.err
}

func (f *fakeReplayer) Trigger() { f.triggers.Add(1) }

func TestHandlePendingWrite(t *testing.T) {
	msg := amqp.NewPendingWriteMessage("pw-1", "transaction")

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "replayed", err: nil},
		{name: "backend unreachable", err: &remote.NetworkError{Op: "health", Err: context.DeadlineExceeded}},
		{name: "logged out", err: remote.ErrUnauthenticated},
		{name: "storage failure", err: errors.New("disk full"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReplayer{err: tt.err, res: outbox.Result{Replayed: 1}}
			err := NewSyncWorker(r, time.Second).HandlePendingWrite(context.Background(), msg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, int32(1), r.replays.Load())
		})
	}
}

func TestStartupSyncCheckToleratesOffline(t *testing.T) {
	r := &fakeReplayer{err: &remote.NetworkError{Op: "health", Err: errors.New("refused")}}
	assert.NoError(t, NewSyncWorker(r, time.Second).StartupSyncCheck(context.Background()))

	r.err = errors.New("corrupt mirror")
	assert.Error(t, NewSyncWorker(r, time.Second).StartupSyncCheck(context.Background()))
}

func TestScheduleTriggersReplay(t *testing.T) {
	r := &fakeReplayer{}
	w := NewSyncWorker(r, time.Second)
	require.NoError(t, w.StartSchedule(context.Background()))
	defer w.StopSchedule()

	assert.Eventually(t, func() bool { return r.triggers.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
