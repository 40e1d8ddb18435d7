// Package store defines the local mirror: a small key-value store holding the
// last known server state of every collection plus session flags.
//
// Values are JSON documents. There is no schema and no coordination between
// writers; the last Set for a key wins.
package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyToken         = "token"
	KeyIsLoggedIn    = "isLoggedIn"
	KeyIsOnboarded   = "isOnboarded"
	KeyWallets       = "wallets"
	KeyTransactions  = "transactions"
	KeyLoans         = "loans"
	KeyPendingWrites = "pending_writes"

	draftKeyPrefix = "loan_draft_"
)

var ErrNotFound = errors.New("key not found")

// Store is the local mirror contract.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the key; removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Clear drops every key.
	Clear(ctx context.Context) error
}

// DraftKey returns the key holding the unsaved form of the given loan type.
func DraftKey(loanType string) string {
	return draftKeyPrefix + loanType
}
