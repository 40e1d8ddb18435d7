package ledger

import (
	"context"
	"errors"
	"fmt"

	"dompet/internal/core"
	"dompet/internal/store"
)

// SaveDraft keeps unsaved loan form input for the given loan type.
func (s *Service) SaveDraft(ctx context.Context, typ core.LoanType, d core.LoanDraft) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidType, typ)
	}
	return store.SaveJSON(ctx, s.store, store.DraftKey(string(typ)), d)
}

// LoadDraft returns the saved draft and whether one existed.
func (s *Service) LoadDraft(ctx context.Context, typ core.LoanType) (core.LoanDraft, bool, error) {
	var d core.LoanDraft
	found, err := store.LoadJSON(ctx, s.store, store.DraftKey(string(typ)), &d)
	if err != nil {
		return core.LoanDraft{}, false, err
	}
	return d, found, nil
}

func (s *Service) ClearDraft(ctx context.Context, typ core.LoanType) error {
	return s.store.Remove(ctx, store.DraftKey(string(typ)))
}

// SubmitDraft turns the saved draft of the given type into a loan.
func (s *Service) SubmitDraft(ctx context.Context, typ core.LoanType) (WriteResult, error) {
	d, found, err := s.LoadDraft(ctx, typ)
	if err != nil {
		return WriteResult{}, err
	}
	if !found {
		return WriteResult{}, fmt.Errorf("%s draft: %w", typ, ErrNotFound)
	}
	l, err := d.Loan(typ)
	if err != nil {
		return WriteResult{}, fmt.Errorf("%s draft: %w", typ, err)
	}
	return s.AddLoan(ctx, l)
}

func (s *Service) MarkOnboarded(ctx context.Context) error {
	return store.SaveJSON(ctx, s.store, store.KeyIsOnboarded, true)
}

// IsOnboarded also accepts the "true" string older clients stored.
func (s *Service) IsOnboarded(ctx context.Context) (bool, error) {
	raw, err := s.store.Get(ctx, store.KeyIsOnboarded)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	v := string(raw)
	return v == "true" || v == `"true"`, nil
}
