package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dompet/internal/core"
	dlog "dompet/internal/log"
	"dompet/internal/remote"
	"dompet/internal/store"
)

var (
	// ErrMalformed marks an entry whose payload cannot be decoded. It is abandoned at once.
	ErrMalformed = errors.New("malformed pending write")
	// ErrUnsyncedWallet means the entry references a wallet that only exists locally.
	ErrUnsyncedWallet = errors.New("references an unsynced wallet")
)

// Remote is the part of the backend client used for replay.
type Remote interface {
	Health(ctx context.Context) error
	CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
	UpdateWalletBalance(ctx context.Context, walletID core.ID, amount core.Amount, typ core.TransactionType) error
}

// ReconcilerConfig holds configuration for the reconciler
type ReconcilerConfig struct {
	// PollInterval is how often the loop replays on its own; zero disables
	// polling and leaves replays to Trigger.
	PollInterval time.Duration

	// MaxRetries is the number of failed attempts before an entry is abandoned (default: 3)
	MaxRetries int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval: 30 * time.Second,
		MaxRetries:   3,
	}
}

// Result summarizes one replay pass.
type Result struct {
	Replayed  int
	Abandoned int
	Remaining int
}

// Reconciler replays the outbox against the backend and swaps local ids for
// server ids in the mirror.
type Reconciler struct {
	queue  *Queue
	store  store.Store
	remote Remote
	config ReconcilerConfig

	// pass serializes replays triggered from different goroutines.
	pass sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	trigger chan struct{}
}

func NewReconciler(s store.Store, q *Queue, r Remote, config ReconcilerConfig) *Reconciler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultReconcilerConfig().MaxRetries
	}
	return &Reconciler{
		queue:   q,
		store:   s,
		remote:  r,
		config:  config,
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the replay loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Reconciler started",
		"poll_interval", r.config.PollInterval,
		"max_retries", r.config.MaxRetries)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger asks the loop for a replay without waiting for it. Triggers that
// arrive while one is already pending are coalesced.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	var tick <-chan time.Time
	if r.config.PollInterval > 0 {
		ticker := time.NewTicker(r.config.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.replayLogged(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-tick:
			r.replayLogged(ctx)
		case <-r.trigger:
			r.replayLogged(ctx)
		}
	}
}

func (r *Reconciler) replayLogged(ctx context.Context) {
	res, err := r.ReplayAll(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Replay pass ended early", dlog.FieldError, err, dlog.FieldRemaining, res.Remaining)
		return
	}
	if res.Replayed > 0 || res.Abandoned > 0 {
		slog.InfoContext(ctx, "Replay pass completed", dlog.NewFields().
			WithOperation(dlog.OpSync).
			WithReplay(res.Replayed, res.Abandoned, res.Remaining).
			ToSlice()...)
	}
}

// ReplayAll probes the backend and replays pending writes oldest first. A
// network failure ends the pass without consuming an attempt; other failures
// count towards MaxRetries.
func (r *Reconciler) ReplayAll(ctx context.Context) (Result, error) {
	r.pass.Lock()
	defer r.pass.Unlock()

	items, err := r.queue.Pending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load pending writes: %w", err)
	}
	res := Result{Remaining: len(items)}
	if len(items) == 0 {
		return res, nil
	}

	if err := r.remote.Health(ctx); err != nil {
		return res, fmt.Errorf("probe backend: %w", err)
	}

	// Entries are re-read before each replay: syncing a wallet rewrites the
	// payloads queued after it.
	attempted := make(map[string]bool, len(items))
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		item, ok, err := r.next(ctx, attempted)
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		attempted[item.ID] = true

		err = r.replayOne(ctx, item)
		switch {
		case err == nil:
			if err := r.queue.Remove(ctx, item.ID); err != nil {
				return res, fmt.Errorf("remove replayed write %s: %w", item.ID, err)
			}
			res.Replayed++
			res.Remaining--
			slog.InfoContext(ctx, "Replayed pending write", dlog.FieldID, item.ID, dlog.FieldKind, item.Kind)
		case errors.Is(err, remote.ErrNetwork), errors.Is(err, remote.ErrUnauthenticated):
			return res, fmt.Errorf("replay %s: %w", item.ID, err)
		default:
			if r.handleFailure(ctx, item, err) {
				res.Abandoned++
				res.Remaining--
			}
		}
	}
	return res, nil
}

func (r *Reconciler) next(ctx context.Context, attempted map[string]bool) (PendingWrite, bool, error) {
	items, err := r.queue.Pending(ctx)
	if err != nil {
		return PendingWrite{}, false, fmt.Errorf("load pending writes: %w", err)
	}
	for _, pw := range items {
		if !attempted[pw.ID] {
			return pw, true, nil
		}
	}
	return PendingWrite{}, false, nil
}

// handleFailure records the attempt and reports whether the entry was abandoned.
func (r *Reconciler) handleFailure(ctx context.Context, item PendingWrite, replayErr error) bool {
	item.Attempts++
	item.LastError = replayErr.Error()
	if item.Attempts >= r.config.MaxRetries || errors.Is(replayErr, ErrMalformed) {
		item.Failed = true
	}

	slog.WarnContext(ctx, "Pending write replay failed",
		dlog.FieldID, item.ID,
		dlog.FieldKind, item.Kind,
		"attempt", item.Attempts,
		dlog.FieldAbandoned, item.Failed,
		dlog.FieldError, replayErr)

	if err := r.queue.Put(ctx, item); err != nil {
		slog.ErrorContext(ctx, "Failed to record replay attempt", dlog.FieldID, item.ID, dlog.FieldError, err)
	}
	return item.Failed
}

func (r *Reconciler) replayOne(ctx context.Context, item PendingWrite) error {
	switch item.Kind {
	case KindWallet:
		var w core.Wallet
		if err := json.Unmarshal(item.Payload, &w); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		created, err := r.remote.CreateWallet(ctx, w)
		if err != nil {
			return err
		}
		return r.swapWalletID(ctx, item.LocalID, created.ID)

	case KindTransaction:
		var tx core.Transaction
		if err := json.Unmarshal(item.Payload, &tx); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if tx.WalletID.IsLocal() {
			return fmt.Errorf("transaction %s: %w %s", item.LocalID, ErrUnsyncedWallet, tx.WalletID)
		}
		created, err := r.remote.CreateTransaction(ctx, tx)
		if err != nil {
			return err
		}
		return swapID(ctx, store.NewCollection[core.Transaction](r.store, store.KeyTransactions),
			func(t *core.Transaction) *core.ID { return &t.ID }, item.LocalID, created.ID)

	case KindLoan:
		var l core.Loan
		if err := json.Unmarshal(item.Payload, &l); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if l.WalletID.IsLocal() {
			return fmt.Errorf("loan %s: %w %s", item.LocalID, ErrUnsyncedWallet, l.WalletID)
		}
		created, err := r.remote.CreateLoan(ctx, l)
		if err != nil {
			return err
		}
		return swapID(ctx, store.NewCollection[core.Loan](r.store, store.KeyLoans),
			func(l *core.Loan) *core.ID { return &l.ID }, item.LocalID, created.ID)

	case KindBalance:
		var bc BalanceChange
		if err := json.Unmarshal(item.Payload, &bc); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if bc.WalletID.IsLocal() {
			return fmt.Errorf("balance change: %w %s", ErrUnsyncedWallet, bc.WalletID)
		}
		return r.remote.UpdateWalletBalance(ctx, bc.WalletID, bc.Amount, bc.Type)
	}
	return fmt.Errorf("%w: %q", ErrMalformed, item.Kind)
}

// swapWalletID renames a local wallet everywhere it is referenced.
func (r *Reconciler) swapWalletID(ctx context.Context, from, to core.ID) error {
	wallets := store.NewCollection[core.Wallet](r.store, store.KeyWallets)
	if err := swapID(ctx, wallets, func(w *core.Wallet) *core.ID { return &w.ID }, from, to); err != nil {
		return err
	}
	txs := store.NewCollection[core.Transaction](r.store, store.KeyTransactions)
	if err := swapID(ctx, txs, func(t *core.Transaction) *core.ID { return &t.WalletID }, from, to); err != nil {
		return err
	}
	loans := store.NewCollection[core.Loan](r.store, store.KeyLoans)
	if err := swapID(ctx, loans, func(l *core.Loan) *core.ID { return &l.WalletID }, from, to); err != nil {
		return err
	}
	if err := r.queue.RewriteWallet(ctx, from, to); err != nil {
		return fmt.Errorf("rewrite queued references: %w", err)
	}
	slog.InfoContext(ctx, "Local wallet synced", "local_id", from, "server_id", to)
	return nil
}

func swapID[T any](ctx context.Context, c *store.Collection[T], field func(*T) *core.ID, from, to core.ID) error {
	if from == "" || from == to {
		return nil
	}
	_, err := c.Update(ctx, func(items []T) []T {
		for i := range items {
			if id := field(&items[i]); *id == from {
				*id = to
			}
		}
		return items
	})
	if err != nil {
		return fmt.Errorf("swap %s in %s: %w", from, c.Key(), err)
	}
	return nil
}
