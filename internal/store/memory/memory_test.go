package memory

import (
	"context"
	"errors"
	"testing"

	"dompet/internal/core"
	"dompet/internal/store"
)

func TestMemoryStoreGetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, store.KeyToken, []byte("abc")); err != nil {
		t.Fatalf("set: %v", err)
	}
	// last write wins
	if err := s.Set(ctx, store.KeyToken, []byte("def")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, store.KeyToken)
	if err != nil || string(v) != "def" {
		t.Fatalf("unexpected get: v=%q err=%v", v, err)
	}

	if err := s.Remove(ctx, store.KeyToken); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, store.KeyToken); err != nil {
		t.Fatalf("removing a missing key should not fail: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", s.Len())
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf)
	buf[0] = 'x'

	v, _ := s.Get(ctx, "k")
	if string(v) != "abc" {
		t.Fatalf("store must not alias caller buffers, got %q", v)
	}
}

func TestCollectionRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	s := New()
	wallets := store.NewCollection[core.Wallet](s, store.KeyWallets)

	empty, err := wallets.Load(ctx)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v err=%v", empty, err)
	}

	if err := wallets.Save(ctx, []core.Wallet{{ID: "w1", Name: "Cash", Balance: 100000}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	updated, err := wallets.Update(ctx, func(ws []core.Wallet) []core.Wallet {
		return append(ws, core.Wallet{ID: "w2", Name: "Bank"})
	})
	if err != nil || len(updated) != 2 {
		t.Fatalf("unexpected update: %v err=%v", updated, err)
	}

	got, _ := wallets.Load(ctx)
	if len(got) != 2 || got[0].Balance != 100000 {
		t.Fatalf("unexpected reload: %+v", got)
	}

	_ = s.Set(ctx, store.DraftKey("get"), []byte(`{}`))
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected clear to drop all keys")
	}
}

func TestCollectionIgnoresCorruptValue(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, store.KeyLoans, []byte("<html>oops</html>"))

	loans, err := store.NewCollection[core.Loan](s, store.KeyLoans).Load(ctx)
	if err != nil || len(loans) != 0 {
		t.Fatalf("corrupt value should load as empty, got %v err=%v", loans, err)
	}
}
