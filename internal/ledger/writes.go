package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"dompet/internal/core"
	dlog "dompet/internal/log"
	"dompet/internal/outbox"
	"dompet/internal/remote"
)

// AddWallet creates a wallet whose initial balance is its starting balance.
func (s *Service) AddWallet(ctx context.Context, name string, balance core.Amount) (WriteResult, error) {
	w := core.Wallet{
		Name:           strings.TrimSpace(name),
		Balance:        balance,
		InitialBalance: balance,
		CreatedAt:      s.now().UTC(),
	}
	if err := w.Validate(); err != nil {
		return WriteResult{}, err
	}

	created, err := s.remote.CreateWallet(ctx, w)
	switch {
	case err == nil:
		w = created
		w.Balance = balance
	case errors.Is(err, remote.ErrNetwork):
		w.ID = s.localID()
		if _, err := s.outbox.Enqueue(ctx, outbox.KindWallet, w.ID, w); err != nil {
			return WriteResult{}, err
		}
	default:
		return WriteResult{}, fmt.Errorf("create wallet: %w", err)
	}

	if _, err := s.wallets.Update(ctx, func(ws []core.Wallet) []core.Wallet {
		return append(ws, w)
	}); err != nil {
		return WriteResult{}, fmt.Errorf("mirror wallet: %w", err)
	}

	res := result(w.ID)
	slog.InfoContext(ctx, "Wallet added", res.fields()...)
	return res, nil
}

// EditWallet renames a wallet and, when balance is non-nil, sets its balance.
// A balance change is pushed to the backend as an adjustment.
func (s *Service) EditWallet(ctx context.Context, id core.ID, name string, balance *core.Amount) (WriteResult, error) {
	wallets, err := s.wallets.Load(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	i := indexOf(wallets, func(w core.Wallet) bool { return w.ID == id })
	if i < 0 {
		return WriteResult{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}

	var delta core.Amount
	if balance != nil {
		delta = *balance - wallets[i].Balance
	}
	// the balance goes first so a rejected adjustment leaves the wallet untouched
	commit, err := s.adjustBalance(ctx, id, delta)
	if err != nil {
		return WriteResult{}, err
	}

	var renamed core.Wallet
	if _, err := s.wallets.Update(ctx, func(ws []core.Wallet) []core.Wallet {
		for j := range ws {
			if ws[j].ID != id {
				continue
			}
			if name = strings.TrimSpace(name); name != "" {
				ws[j].Name = name
			}
			renamed = ws[j]
		}
		return ws
	}); err != nil {
		return WriteResult{}, fmt.Errorf("mirror wallet: %w", err)
	}
	if id.IsLocal() {
		// later balance changes are queued separately, the create keeps the starting balance
		renamed.Balance = renamed.InitialBalance
		if err := s.outbox.ReplacePayload(ctx, id, renamed); err != nil {
			return WriteResult{}, err
		}
		commit = CommitLocalPending
	}
	return WriteResult{Committed: commit, ID: id}, nil
}

// DeleteWallet removes the wallet from the mirror. Its synced transactions are
// kept. For a wallet that only exists locally, the queued writes and the
// unsynced transactions and loans referencing it go with it.
func (s *Service) DeleteWallet(ctx context.Context, id core.ID) error {
	found := false
	if _, err := s.wallets.Update(ctx, func(ws []core.Wallet) []core.Wallet {
		out := ws[:0]
		for _, w := range ws {
			if w.ID == id {
				found = true
				continue
			}
			out = append(out, w)
		}
		return out
	}); err != nil {
		return fmt.Errorf("mirror wallets: %w", err)
	}
	if !found {
		return fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	if !id.IsLocal() {
		slog.InfoContext(ctx, "Wallet deleted", dlog.FieldID, id)
		return nil
	}
	if _, err := s.outbox.DropLocal(ctx, id); err != nil {
		return err
	}
	dropped, err := s.outbox.DropWallet(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.txs.Update(ctx, func(txs []core.Transaction) []core.Transaction {
		return removeLocal(txs, func(t core.Transaction) (core.ID, core.ID) { return t.ID, t.WalletID }, id)
	}); err != nil {
		return fmt.Errorf("mirror transactions: %w", err)
	}
	if _, err := s.loans.Update(ctx, func(ls []core.Loan) []core.Loan {
		return removeLocal(ls, func(l core.Loan) (core.ID, core.ID) { return l.ID, l.WalletID }, id)
	}); err != nil {
		return fmt.Errorf("mirror loans: %w", err)
	}
	s.reports.Purge()
	slog.InfoContext(ctx, "Wallet deleted", dlog.FieldID, id, "dropped_writes", dropped)
	return nil
}

// removeLocal drops the locally created items that reference walletID.
func removeLocal[T any](items []T, ids func(T) (id, walletID core.ID), walletID core.ID) []T {
	out := items[:0]
	for _, it := range items {
		id, w := ids(it)
		if id.IsLocal() && w == walletID {
			continue
		}
		out = append(out, it)
	}
	return out
}

// AddTransaction records the transaction and moves the wallet balance by its
// signed amount. When the backend accepts the transaction but rejects the
// balance update, the result is returned together with the error.
func (s *Service) AddTransaction(ctx context.Context, tx core.Transaction) (WriteResult, error) {
	tx = tx.Normalize()
	tx.ID = ""
	if err := tx.Validate(); err != nil {
		return WriteResult{}, err
	}
	defer s.reports.Purge()

	if !tx.WalletID.IsLocal() {
		created, err := s.remote.CreateTransaction(ctx, tx)
		switch {
		case err == nil:
			if err := s.prependTransaction(ctx, created); err != nil {
				return WriteResult{}, err
			}
			commit, err := s.adjustBalance(ctx, created.WalletID, created.Signed())
			slog.InfoContext(ctx, "Transaction added", dlog.FieldID, created.ID, "balance_committed", commit)
			if err != nil {
				return result(created.ID), err
			}
			return result(created.ID), nil
		case !errors.Is(err, remote.ErrNetwork):
			return WriteResult{}, fmt.Errorf("create transaction: %w", err)
		}
	}

	tx.ID = s.localID()
	if _, err := s.outbox.Enqueue(ctx, outbox.KindTransaction, tx.ID, tx); err != nil {
		return WriteResult{}, err
	}
	if err := s.prependTransaction(ctx, tx); err != nil {
		return WriteResult{}, err
	}
	if err := s.queueBalance(ctx, tx.WalletID, tx.Signed()); err != nil {
		return WriteResult{}, err
	}
	slog.InfoContext(ctx, "Transaction kept locally", dlog.FieldID, tx.ID, dlog.FieldWalletID, tx.WalletID)
	return result(tx.ID), nil
}

// EditTransaction replaces a mirrored transaction and moves the affected
// wallet balances by the difference.
func (s *Service) EditTransaction(ctx context.Context, tx core.Transaction) (WriteResult, error) {
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return WriteResult{}, err
	}
	txs, err := s.txs.Load(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	i := indexOf(txs, func(t core.Transaction) bool { return t.ID == tx.ID })
	if i < 0 {
		return WriteResult{}, fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	old := txs[i]

	commit := CommitRemote
	if tx.ID.IsLocal() {
		commit = CommitLocalPending
	}
	changes := []balanceChange{
		{old.WalletID, -old.Signed()},
		{tx.WalletID, tx.Signed()},
	}
	if old.WalletID == tx.WalletID {
		changes = changes[:1]
		changes[0].delta = tx.Signed() - old.Signed()
	}
	// balances go first: when the backend rejects one, the applied ones are
	// reversed and the mirrored transaction keeps its old values
	for k, c := range changes {
		got, err := s.adjustBalance(ctx, c.wallet, c.delta)
		if err != nil {
			s.undoBalances(ctx, changes[:k])
			return WriteResult{}, err
		}
		if got == CommitLocalPending {
			commit = CommitLocalPending
		}
	}

	if _, err := s.txs.Update(ctx, func(txs []core.Transaction) []core.Transaction {
		for j := range txs {
			if txs[j].ID == tx.ID {
				txs[j] = tx
			}
		}
		remote.SortNewestFirst(txs)
		return txs
	}); err != nil {
		return WriteResult{}, fmt.Errorf("mirror transactions: %w", err)
	}
	s.reports.Purge()

	if tx.ID.IsLocal() {
		if err := s.outbox.ReplacePayload(ctx, tx.ID, tx); err != nil {
			return WriteResult{}, err
		}
	}
	res := WriteResult{Committed: commit, ID: tx.ID}
	slog.InfoContext(ctx, "Transaction edited", res.fields()...)
	return res, nil
}

type balanceChange struct {
	wallet core.ID
	delta  core.Amount
}

// undoBalances reverses adjustments already pushed during a write that failed later.
func (s *Service) undoBalances(ctx context.Context, applied []balanceChange) {
	for _, c := range applied {
		if _, err := s.adjustBalance(ctx, c.wallet, -c.delta); err != nil {
			slog.ErrorContext(ctx, "Failed to reverse balance change",
				dlog.FieldWalletID, c.wallet,
				dlog.FieldAmount, -c.delta,
				dlog.FieldError, err)
		}
	}
}

// DeleteTransaction removes a mirrored transaction and reverses its effect on
// the wallet balance.
func (s *Service) DeleteTransaction(ctx context.Context, id core.ID) (WriteResult, error) {
	txs, err := s.txs.Load(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	i := indexOf(txs, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return WriteResult{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	old := txs[i]

	commit, err := s.adjustBalance(ctx, old.WalletID, -old.Signed())
	if err != nil {
		return WriteResult{}, err
	}

	if _, err := s.txs.Update(ctx, func(txs []core.Transaction) []core.Transaction {
		out := txs[:0]
		for _, t := range txs {
			if t.ID != id {
				out = append(out, t)
			}
		}
		return out
	}); err != nil {
		return WriteResult{}, fmt.Errorf("mirror transactions: %w", err)
	}
	s.reports.Purge()

	if _, err := s.outbox.DropLocal(ctx, id); err != nil {
		return WriteResult{}, err
	}
	slog.InfoContext(ctx, "Transaction deleted", dlog.FieldID, id, "balance_committed", commit)
	return WriteResult{Committed: commit, ID: id}, nil
}

// AddLoan records a loan and clears the draft of its type.
func (s *Service) AddLoan(ctx context.Context, l core.Loan) (WriteResult, error) {
	l = l.Normalize()
	l.ID = ""
	if err := l.Validate(); err != nil {
		return WriteResult{}, err
	}

	created, err := core.Loan{}, remote.ErrNetwork
	if !l.WalletID.IsLocal() {
		created, err = s.remote.CreateLoan(ctx, l)
	}
	switch {
	case err == nil:
		l = created
	case errors.Is(err, remote.ErrNetwork):
		l.ID = s.localID()
		if _, err := s.outbox.Enqueue(ctx, outbox.KindLoan, l.ID, l); err != nil {
			return WriteResult{}, err
		}
	default:
		return WriteResult{}, fmt.Errorf("create loan: %w", err)
	}

	if _, err := s.loans.Update(ctx, func(ls []core.Loan) []core.Loan {
		return append(ls, l)
	}); err != nil {
		return WriteResult{}, fmt.Errorf("mirror loan: %w", err)
	}
	if err := s.ClearDraft(ctx, l.Type); err != nil {
		slog.WarnContext(ctx, "Failed to clear loan draft", "type", l.Type, dlog.FieldError, err)
	}

	res := result(l.ID)
	slog.InfoContext(ctx, "Loan added", append(res.fields(), "type", l.Type)...)
	return res, nil
}

// SetLoanStatus marks a mirrored loan paid or unpaid.
func (s *Service) SetLoanStatus(ctx context.Context, id core.ID, status core.LoanStatus) (core.Loan, error) {
	if !status.Valid() {
		return core.Loan{}, fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	return s.updateLoan(ctx, id, func(l *core.Loan) { l.Status = status })
}

// ToggleLoanStatus flips a mirrored loan between paid and unpaid.
func (s *Service) ToggleLoanStatus(ctx context.Context, id core.ID) (core.Loan, error) {
	return s.updateLoan(ctx, id, func(l *core.Loan) { l.Status = l.Status.Toggle() })
}

func (s *Service) updateLoan(ctx context.Context, id core.ID, fn func(*core.Loan)) (core.Loan, error) {
	loans, err := s.loans.Load(ctx)
	if err != nil {
		return core.Loan{}, err
	}
	i := indexOf(loans, func(l core.Loan) bool { return l.ID == id })
	if i < 0 {
		return core.Loan{}, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	fn(&loans[i])
	if err := s.loans.Save(ctx, loans); err != nil {
		return core.Loan{}, fmt.Errorf("mirror loans: %w", err)
	}
	if id.IsLocal() {
		if err := s.outbox.ReplacePayload(ctx, id, loans[i]); err != nil {
			return core.Loan{}, err
		}
	}
	return loans[i], nil
}

// DeleteLoan removes a loan from the mirror.
func (s *Service) DeleteLoan(ctx context.Context, id core.ID) error {
	found := false
	if _, err := s.loans.Update(ctx, func(ls []core.Loan) []core.Loan {
		out := ls[:0]
		for _, l := range ls {
			if l.ID == id {
				found = true
				continue
			}
			out = append(out, l)
		}
		return out
	}); err != nil {
		return fmt.Errorf("mirror loans: %w", err)
	}
	if !found {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	_, err := s.outbox.DropLocal(ctx, id)
	return err
}

// adjustBalance moves the mirrored balance by delta and pushes the same
// adjustment to the backend, queueing it when the backend is unreachable or
// the wallet only exists locally. Any other failure reverts the mirrored
// balance.
func (s *Service) adjustBalance(ctx context.Context, walletID core.ID, delta core.Amount) (Commit, error) {
	if delta == 0 || walletID == "" {
		return CommitRemote, nil
	}
	if err := s.applyLocal(ctx, walletID, delta); err != nil {
		return "", err
	}
	if walletID.IsLocal() {
		return CommitLocalPending, s.enqueueBalance(ctx, walletID, delta)
	}

	amount, typ := split(delta)
	err := s.remote.UpdateWalletBalance(ctx, walletID, amount, typ)
	switch {
	case err == nil:
		return CommitRemote, nil
	case errors.Is(err, remote.ErrNetwork):
		return CommitLocalPending, s.enqueueBalance(ctx, walletID, delta)
	default:
		if rerr := s.applyLocal(ctx, walletID, -delta); rerr != nil {
			return "", errors.Join(fmt.Errorf("update wallet balance: %w", err), rerr)
		}
		return "", fmt.Errorf("update wallet balance: %w", err)
	}
}

// queueBalance applies delta locally and queues it without contacting the backend.
func (s *Service) queueBalance(ctx context.Context, walletID core.ID, delta core.Amount) error {
	if delta == 0 {
		return nil
	}
	if err := s.applyLocal(ctx, walletID, delta); err != nil {
		return err
	}
	return s.enqueueBalance(ctx, walletID, delta)
}

func (s *Service) enqueueBalance(ctx context.Context, walletID core.ID, delta core.Amount) error {
	amount, typ := split(delta)
	_, err := s.outbox.Enqueue(ctx, outbox.KindBalance, "", outbox.BalanceChange{
		WalletID: walletID,
		Amount:   amount,
		Type:     typ,
	})
	return err
}

func (s *Service) applyLocal(ctx context.Context, walletID core.ID, delta core.Amount) error {
	found := false
	if _, err := s.wallets.Update(ctx, func(ws []core.Wallet) []core.Wallet {
		for i := range ws {
			if ws[i].ID == walletID {
				ws[i].Balance += delta
				found = true
			}
		}
		return ws
	}); err != nil {
		return fmt.Errorf("mirror wallet balance: %w", err)
	}
	if !found {
		slog.WarnContext(ctx, "Balance change for unknown wallet", dlog.FieldWalletID, walletID, dlog.FieldAmount, delta)
	}
	return nil
}

func (s *Service) prependTransaction(ctx context.Context, tx core.Transaction) error {
	if _, err := s.txs.Update(ctx, func(txs []core.Transaction) []core.Transaction {
		return append([]core.Transaction{tx}, txs...)
	}); err != nil {
		return fmt.Errorf("mirror transaction: %w", err)
	}
	return nil
}

// split turns a signed delta into the amount and type the backend expects.
func split(delta core.Amount) (core.Amount, core.TransactionType) {
	if delta < 0 {
		return -delta, core.Expense
	}
	return delta, core.Income
}

func (r WriteResult) fields() []any {
	return dlog.NewFields().WithWrite(string(r.ID), string(r.Committed)).ToSlice()
}

func result(id core.ID) WriteResult {
	if id.IsLocal() {
		return WriteResult{Committed: CommitLocalPending, ID: id}
	}
	return WriteResult{Committed: CommitRemote, ID: id}
}

func decodeBalance(pw outbox.PendingWrite) (outbox.BalanceChange, error) {
	var bc outbox.BalanceChange
	err := json.Unmarshal(pw.Payload, &bc)
	return bc, err
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, it := range items {
		if match(it) {
			return i
		}
	}
	return -1
}
