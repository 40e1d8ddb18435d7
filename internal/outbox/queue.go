// Package outbox keeps writes made while the backend was unreachable and
// replays them once it is back.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dompet/internal/core"
	dlog "dompet/internal/log"
	"dompet/internal/store"
)

type Kind string

const (
	KindWallet      Kind = "wallet"
	KindTransaction Kind = "transaction"
	KindLoan        Kind = "loan"
	KindBalance     Kind = "balance"
)

var ErrUnknownKind = errors.New("unknown pending write kind")

// PendingWrite is one queued create or balance adjustment. Entries that ran
// out of attempts stay in the queue with Failed set.
type PendingWrite struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	LocalID   core.ID         `json:"local_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Failed    bool            `json:"failed,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BalanceChange is the payload of a KindBalance entry.
type BalanceChange struct {
	WalletID core.ID              `json:"wallet_id"`
	Amount   core.Amount          `json:"amount"`
	Type     core.TransactionType `json:"type"`
}

// Notifier is told about every queued write, e.g. to wake a replay worker.
type Notifier interface {
	PublishPendingWrite(ctx context.Context, id, kind string) error
}

// Queue persists pending writes in the mirror under store.KeyPendingWrites.
type Queue struct {
	items    *store.Collection[PendingWrite]
	notifier Notifier
	now      func() time.Time
}

func NewQueue(s store.Store) *Queue {
	return &Queue{
		items: store.NewCollection[PendingWrite](s, store.KeyPendingWrites),
		now:   time.Now,
	}
}

// WithNotifier sets the notifier used after each Enqueue.
func (q *Queue) WithNotifier(n Notifier) *Queue {
	q.notifier = n
	return q
}

// Enqueue appends a write. localID is the synthesized id of the created
// entity, empty for balance changes.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, localID core.ID, payload any) (PendingWrite, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PendingWrite{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	pw := PendingWrite{
		ID:        uuid.NewString(),
		Kind:      kind,
		LocalID:   localID,
		Payload:   raw,
		CreatedAt: q.now().UTC(),
	}
	if _, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		return append(items, pw)
	}); err != nil {
		return PendingWrite{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}

	slog.InfoContext(ctx, "Queued pending write",
		dlog.FieldID, pw.ID,
		dlog.FieldKind, kind,
		"local_id", localID)

	if q.notifier != nil {
		if err := q.notifier.PublishPendingWrite(ctx, pw.ID, string(kind)); err != nil {
			slog.WarnContext(ctx, "Failed to publish pending write notification",
				dlog.FieldID, pw.ID, dlog.FieldError, err)
		}
	}
	return pw, nil
}

// All returns every entry in FIFO order, failed ones included.
func (q *Queue) All(ctx context.Context) ([]PendingWrite, error) {
	return q.items.Load(ctx)
}

// Pending returns the entries still eligible for replay, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]PendingWrite, error) {
	return q.filter(ctx, func(pw PendingWrite) bool { return !pw.Failed })
}

// Failed returns the abandoned entries.
func (q *Queue) Failed(ctx context.Context) ([]PendingWrite, error) {
	return q.filter(ctx, func(pw PendingWrite) bool { return pw.Failed })
}

func (q *Queue) filter(ctx context.Context, keep func(PendingWrite) bool) ([]PendingWrite, error) {
	items, err := q.items.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingWrite, 0, len(items))
	for _, pw := range items {
		if keep(pw) {
			out = append(out, pw)
		}
	}
	return out, nil
}

// Remove drops the entry with the given id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		return removeWhere(items, func(pw PendingWrite) bool { return pw.ID == id })
	})
	return err
}

// Put replaces the stored entry that has the same id.
func (q *Queue) Put(ctx context.Context, pw PendingWrite) error {
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		for i := range items {
			if items[i].ID == pw.ID {
				items[i] = pw
			}
		}
		return items
	})
	return err
}

// DropLocal removes the create entry for a locally created entity, reporting
// whether one was queued.
func (q *Queue) DropLocal(ctx context.Context, localID core.ID) (bool, error) {
	if !localID.IsLocal() {
		return false, nil
	}
	dropped := false
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		out := removeWhere(items, func(pw PendingWrite) bool { return pw.LocalID == localID })
		dropped = len(out) != len(items)
		return out
	})
	return dropped, err
}

// DropWallet removes the queued writes that reference the locally created
// wallet walletID and reports how many were dropped. Entries that cannot be
// decoded are kept.
func (q *Queue) DropWallet(ctx context.Context, walletID core.ID) (int, error) {
	if !walletID.IsLocal() {
		return 0, nil
	}
	dropped := 0
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		out := removeWhere(items, func(pw PendingWrite) bool {
			ref, err := walletRef(pw)
			return err == nil && ref == walletID
		})
		dropped = len(items) - len(out)
		return out
	})
	return dropped, err
}

// ReplacePayload rewrites the payload of the create entry for localID.
func (q *Queue) ReplacePayload(ctx context.Context, localID core.ID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		for i := range items {
			if items[i].LocalID == localID {
				items[i].Payload = raw
			}
		}
		return items
	})
	return err
}

// RewriteWallet points queued payloads that reference the wallet from at the wallet to.
func (q *Queue) RewriteWallet(ctx context.Context, from, to core.ID) error {
	var rewriteErr error
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		for i := range items {
			raw, err := rewriteWalletRef(items[i], from, to)
			if err != nil {
				rewriteErr = err
				continue
			}
			items[i].Payload = raw
		}
		return items
	})
	if err != nil {
		return err
	}
	return rewriteErr
}

func rewriteWalletRef(pw PendingWrite, from, to core.ID) (json.RawMessage, error) {
	switch pw.Kind {
	case KindTransaction:
		var tx core.Transaction
		if err := json.Unmarshal(pw.Payload, &tx); err != nil {
			return pw.Payload, fmt.Errorf("decode %s: %w", pw.ID, err)
		}
		if tx.WalletID != from {
			return pw.Payload, nil
		}
		tx.WalletID = to
		return json.Marshal(tx)
	case KindLoan:
		var l core.Loan
		if err := json.Unmarshal(pw.Payload, &l); err != nil {
			return pw.Payload, fmt.Errorf("decode %s: %w", pw.ID, err)
		}
		if l.WalletID != from {
			return pw.Payload, nil
		}
		l.WalletID = to
		return json.Marshal(l)
	case KindBalance:
		var bc BalanceChange
		if err := json.Unmarshal(pw.Payload, &bc); err != nil {
			return pw.Payload, fmt.Errorf("decode %s: %w", pw.ID, err)
		}
		if bc.WalletID != from {
			return pw.Payload, nil
		}
		bc.WalletID = to
		return json.Marshal(bc)
	}
	return pw.Payload, nil
}

// walletRef returns the wallet a queued payload points at, if any.
func walletRef(pw PendingWrite) (core.ID, error) {
	switch pw.Kind {
	case KindTransaction:
		var tx core.Transaction
		err := json.Unmarshal(pw.Payload, &tx)
		return tx.WalletID, err
	case KindLoan:
		var l core.Loan
		err := json.Unmarshal(pw.Payload, &l)
		return l.WalletID, err
	case KindBalance:
		var bc BalanceChange
		err := json.Unmarshal(pw.Payload, &bc)
		return bc.WalletID, err
	}
	return "", nil
}

// RetryFailed clears the failed mark and attempt count of abandoned entries.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	n := 0
	_, err := q.items.Update(ctx, func(items []PendingWrite) []PendingWrite {
		for i := range items {
			if items[i].Failed {
				items[i].Failed = false
				items[i].Attempts = 0
				n++
			}
		}
		return items
	})
	return n, err
}

func removeWhere(items []PendingWrite, match func(PendingWrite) bool) []PendingWrite {
	out := items[:0]
	for _, pw := range items {
		if !match(pw) {
			out = append(out, pw)
		}
	}
	return out
}
