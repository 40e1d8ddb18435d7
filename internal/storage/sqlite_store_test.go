package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/core"
	"dompet/internal/store"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "dompet.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStoreGetSetRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Get(ctx, store.KeyToken)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Set(ctx, store.KeyToken, []byte("first")))
	require.NoError(t, s.Set(ctx, store.KeyToken, []byte("second")))

	v, err := s.Get(ctx, store.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "second", string(v))

	require.NoError(t, s.Remove(ctx, store.KeyToken))
	require.NoError(t, s.Remove(ctx, store.KeyToken))
	_, err = s.Get(ctx, store.KeyToken)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteStoreClearAndKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, store.KeyWallets, []byte("[]")))
	require.NoError(t, s.Set(ctx, store.DraftKey("give"), []byte("{}")))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{store.KeyWallets, "loan_draft_give"}, keys)

	require.NoError(t, s.Clear(ctx))
	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	txs := store.NewCollection[core.Transaction](s, store.KeyTransactions)
	require.NoError(t, txs.Save(ctx, []core.Transaction{{
		ID: "t1", Title: "Coffee", Amount: 27000, Type: core.Expense, WalletID: "w1", Date: core.NewDate(2024, 3, 1),
	}}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := store.NewCollection[core.Transaction](reopened, store.KeyTransactions).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Amount(27000), got[0].Amount)
	assert.Equal(t, "2024-03-01", got[0].Date.String())
}
