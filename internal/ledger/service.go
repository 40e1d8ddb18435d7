// Package ledger combines the backend client with the local mirror. Reads fall
// back to the mirror when the backend cannot answer, creates made while it is
// unreachable are kept locally and queued for replay.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dompet/internal/cache"
	"dompet/internal/core"
	dlog "dompet/internal/log"
	"dompet/internal/outbox"
	"dompet/internal/remote"
	"dompet/internal/session"
	"dompet/internal/store"
)

var ErrNotFound = errors.New("not found")

// Remote is the backend API used by the service.
type Remote interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
	Health(ctx context.Context) error
	ListWallets(ctx context.Context) ([]core.Wallet, error)
	CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID core.ID, amount core.Amount, typ core.TransactionType) error
	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	ListLoans(ctx context.Context) ([]core.Loan, error)
	CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error)
}

// Commit says where a write landed.
type Commit string

const (
	CommitRemote       Commit = "remote"
	CommitLocalPending Commit = "local-pending"
)

// WriteResult reports the outcome of a write that succeeded at least locally.
type WriteResult struct {
	Committed Commit
	ID        core.ID
}

// Snapshot is the result of a Refresh.
type Snapshot struct {
	Wallets      []core.Wallet
	Transactions []core.Transaction
	Loans        []core.Loan
}

type Service struct {
	remote  Remote
	store   store.Store
	session *session.Session
	outbox  *outbox.Queue
	reports *cache.LRUCache[core.Report]

	wallets *store.Collection[core.Wallet]
	txs     *store.Collection[core.Transaction]
	loans   *store.Collection[core.Loan]

	now     func() time.Time
	localID func() core.ID
}

type Option func(*Service)

// WithClock replaces the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReportCache sets the cache used by Report.
func WithReportCache(c *cache.LRUCache[core.Report]) Option {
	return func(s *Service) { s.reports = c }
}

func NewService(r Remote, st store.Store, sess *session.Session, q *outbox.Queue, opts ...Option) *Service {
	s := &Service{
		remote:  r,
		store:   st,
		session: sess,
		outbox:  q,
		wallets: store.NewCollection[core.Wallet](st, store.KeyWallets),
		txs:     store.NewCollection[core.Transaction](st, store.KeyTransactions),
		loans:   store.NewCollection[core.Loan](st, store.KeyLoans),
		now:     time.Now,
		localID: func() core.ID { return core.ID(core.LocalIDPrefix + uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reports == nil {
		s.reports = cache.NewLRUCache[core.Report](24, 10*time.Minute)
	}
	return s
}

// Login authenticates against the backend and starts a session.
func (s *Service) Login(ctx context.Context, email, password string) error {
	token, err := s.remote.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return s.session.Login(ctx, token)
}

// Register creates an account and starts a session when the backend hands
// out a token right away. It reports whether a session was started.
func (s *Service) Register(ctx context.Context, email, password string) (bool, error) {
	token, err := s.remote.Register(ctx, email, password)
	if err != nil {
		return false, fmt.Errorf("register: %w", err)
	}
	if token == "" {
		return false, nil
	}
	return true, s.session.Login(ctx, token)
}

// Logout wipes the mirror.
func (s *Service) Logout(ctx context.Context) error {
	s.reports.Purge()
	return s.session.Logout(ctx)
}

// Health probes the backend.
func (s *Service) Health(ctx context.Context) error {
	return s.remote.Health(ctx)
}

// Wallets returns the wallets from the backend, or the mirror when the
// backend cannot answer. Balance changes still waiting for replay are applied
// on top of the backend's balances.
func (s *Service) Wallets(ctx context.Context) ([]core.Wallet, error) {
	fetched, err := s.remote.ListWallets(ctx)
	if err != nil {
		return fallback(ctx, s.wallets, err)
	}

	cached, err := s.wallets.Load(ctx)
	if err != nil {
		return nil, err
	}
	deltas, err := s.pendingBalances(ctx)
	if err != nil {
		return nil, err
	}
	for i := range fetched {
		fetched[i].Balance += deltas[fetched[i].ID]
	}
	merged := append(fetched, localOnly(cached, func(w core.Wallet) core.ID { return w.ID })...)
	if err := s.wallets.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("mirror wallets: %w", err)
	}
	return merged, nil
}

// Transactions returns all transactions newest first, from the backend or the mirror.
func (s *Service) Transactions(ctx context.Context) ([]core.Transaction, error) {
	fetched, err := s.remote.ListTransactions(ctx)
	if err != nil {
		return fallback(ctx, s.txs, err)
	}

	cached, err := s.txs.Load(ctx)
	if err != nil {
		return nil, err
	}
	merged := append(fetched, localOnly(cached, func(t core.Transaction) core.ID { return t.ID })...)
	remote.SortNewestFirst(merged)
	if err := s.txs.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("mirror transactions: %w", err)
	}
	s.reports.Purge()
	return merged, nil
}

// Loans returns all loans from the backend or the mirror.
func (s *Service) Loans(ctx context.Context) ([]core.Loan, error) {
	fetched, err := s.remote.ListLoans(ctx)
	if err != nil {
		return fallback(ctx, s.loans, err)
	}

	cached, err := s.loans.Load(ctx)
	if err != nil {
		return nil, err
	}
	merged := append(fetched, localOnly(cached, func(l core.Loan) core.ID { return l.ID })...)
	if err := s.loans.Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("mirror loans: %w", err)
	}
	return merged, nil
}

// Refresh fetches the three collections concurrently. Each one falls back to
// the mirror on its own; only authentication and storage errors fail the call.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.Wallets(gctx)
		snap.Wallets = w
		return err
	})
	g.Go(func() error {
		t, err := s.Transactions(gctx)
		snap.Transactions = t
		return err
	})
	g.Go(func() error {
		l, err := s.Loans(gctx)
		snap.Loans = l
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	slog.InfoContext(ctx, "Refreshed collections",
		"wallets", len(snap.Wallets),
		"transactions", len(snap.Transactions),
		"loans", len(snap.Loans))
	return snap, nil
}

// ReconcileBalances recomputes every mirrored wallet balance from its initial
// balance and the mirrored transactions, and returns the repaired wallets.
func (s *Service) ReconcileBalances(ctx context.Context) ([]core.Wallet, error) {
	wallets, err := s.wallets.Load(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.Load(ctx)
	if err != nil {
		return nil, err
	}
	derived := core.DeriveBalances(wallets, txs)
	for i := range derived {
		if derived[i].Balance != wallets[i].Balance {
			slog.InfoContext(ctx, "Repaired wallet balance",
				dlog.FieldWalletID, derived[i].ID,
				"was", wallets[i].Balance,
				"now", derived[i].Balance)
		}
	}
	if err := s.wallets.Save(ctx, derived); err != nil {
		return nil, fmt.Errorf("mirror wallets: %w", err)
	}
	return derived, nil
}

// fallback serves the mirror for errors that mean the backend could not
// answer usefully, and passes everything else through.
func fallback[T any](ctx context.Context, c *store.Collection[T], err error) ([]T, error) {
	if !remote.IsFallback(err) {
		return nil, err
	}
	slog.WarnContext(ctx, "Serving mirrored collection", "key", c.Key(), dlog.FieldError, err)
	return c.Load(ctx)
}

// localOnly keeps the items that were created offline and are not on the backend yet.
func localOnly[T any](items []T, id func(T) core.ID) []T {
	var out []T
	for _, it := range items {
		if id(it).IsLocal() {
			out = append(out, it)
		}
	}
	return out
}

func (s *Service) pendingBalances(ctx context.Context) (map[core.ID]core.Amount, error) {
	items, err := s.outbox.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending writes: %w", err)
	}
	deltas := map[core.ID]core.Amount{}
	for _, pw := range items {
		if pw.Kind != outbox.KindBalance {
			continue
		}
		bc, err := decodeBalance(pw)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable balance change", dlog.FieldID, pw.ID, dlog.FieldError, err)
			continue
		}
		deltas[bc.WalletID] += core.Transaction{Amount: bc.Amount, Type: bc.Type}.Signed()
	}
	return deltas, nil
}
