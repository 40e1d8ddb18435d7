package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"dompet/internal/core"
	dlog "dompet/internal/log"
)

// Overview is the header shown above the wallet and transaction lists.
type Overview struct {
	WalletTotal core.Amount
	Month       core.Totals
	AllTime     core.Totals
	Loans       core.LoanSummary
}

// Report returns the monthly report, memoized per month until the next
// transaction write or refresh.
func (s *Service) Report(ctx context.Context, year, month int) (core.Report, error) {
	if month < 1 || month > 12 {
		return core.Report{}, fmt.Errorf("month %d out of range", month)
	}
	key := fmt.Sprintf("%04d-%02d", year, month)
	if r, ok := s.reports.Get(key); ok {
		slog.DebugContext(ctx, "Report cache hit", dlog.FieldMonth, key)
		return r, nil
	}

	txs, err := s.Transactions(ctx)
	if err != nil {
		return core.Report{}, err
	}
	r := core.MonthlyReport(txs, year, month)
	s.reports.Set(key, r)
	return r, nil
}

// Overview summarizes wallets, the given month and outstanding loans.
func (s *Service) Overview(ctx context.Context, year, month int) (Overview, error) {
	snap, err := s.Refresh(ctx)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		WalletTotal: core.WalletTotal(snap.Wallets),
		Month:       core.MonthlyTotals(snap.Transactions, year, month),
		AllTime:     core.TransactionTotals(snap.Transactions),
		Loans:       core.LoanTotals(snap.Loans),
	}, nil
}
