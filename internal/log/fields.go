package log

import "sort"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldCommit      = "commit"
	FieldID          = "id"
	FieldWalletID    = "wallet_id"
	FieldKind        = "kind"
	FieldAmount      = "amount"
	FieldMonth       = "month"
	FieldReplayed    = "replayed"
	FieldAbandoned   = "abandoned"
	FieldRemaining   = "remaining"
	FieldExportRef   = "export_ref"
	FieldStoreType   = "store_backend"
	FieldSyncEnabled = "amqp_enabled"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentCLI     = "cli"
	ComponentWorker  = "worker"
	ComponentStorage = "storage"
)

// Operations defines standard operation names
const (
	OpExport   = "export"
	OpSync     = "sync"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithWrite adds the fields describing a ledger write
func (f LogFields) WithWrite(id, commit string) LogFields {
	f[FieldID] = id
	f[FieldCommit] = commit
	return f
}

// WithReplay adds reconciliation pass counters
func (f LogFields) WithReplay(replayed, abandoned, remaining int) LogFields {
	f[FieldReplayed] = replayed
	f[FieldAbandoned] = abandoned
	f[FieldRemaining] = remaining
	return f
}

// ToSlice converts LogFields to a slice for slog, ordered by key
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
