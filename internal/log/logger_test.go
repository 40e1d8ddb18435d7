package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentCLI, Output: &buf})

	l.InfoContext(context.Background(), "Listed wallets", FieldAmount, 3)
	assert.Contains(t, buf.String(), "component=cli")
	assert.Contains(t, buf.String(), "amount=3")

	buf.Reset()
	l.WithComponent(ComponentWorker).Info("Started")
	assert.Contains(t, buf.String(), "component=worker")
	assert.NotContains(t, buf.String(), "component=cli")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Output: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component=app")
}

func TestOperation(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	l.Operation(context.Background(), OpSync, errors.New("backend unreachable"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "operation=sync")
	assert.Contains(t, buf.String(), `error="backend unreachable"`)

	buf.Reset()
	l.Operation(context.Background(), OpExport, nil, FieldExportRef, "out.csv")
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "export_ref=out.csv")
}

func TestFieldsToSliceIsOrdered(t *testing.T) {
	got := NewFields().WithReplay(2, 1, 0).WithOperation(OpSync).ToSlice()
	assert.Equal(t, []any{
		FieldAbandoned, 1,
		FieldOperation, OpSync,
		FieldRemaining, 0,
		FieldReplayed, 2,
	}, got)
}
