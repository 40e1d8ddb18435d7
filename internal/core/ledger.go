package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals holds income and expense sums.
type Totals struct {
	Income  Amount
	Expense Amount
}

// Net is income minus expense.
func (t Totals) Net() Amount {
	return t.Income - t.Expense
}

// LoanSummary holds the outstanding amounts in both directions.
type LoanSummary struct {
	Get  Amount
	Give Amount
}

// Signed returns the amount with the sign implied by the transaction type.
func (t Transaction) Signed() Amount {
	if t.Type == Expense {
		return -t.Amount
	}
	return t.Amount
}

// Apply adds the transaction's effect to the wallet balance.
func (w *Wallet) Apply(t Transaction) {
	w.Balance += t.Signed()
}

// Revert removes the transaction's effect from the wallet balance.
func (w *Wallet) Revert(t Transaction) {
	w.Balance -= t.Signed()
}

// WalletTotal sums all wallet balances.
func WalletTotal(wallets []Wallet) Amount {
	var total Amount
	for _, w := range wallets {
		total += w.Balance
	}
	return total
}

// TransactionTotals sums income and expense over the whole list.
func TransactionTotals(txs []Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			t.Income += tx.Amount
		case Expense:
			t.Expense += tx.Amount
		}
	}
	return t
}

// MonthlyTotals sums income and expense for one calendar month.
func MonthlyTotals(txs []Transaction, year, month int) Totals {
	return TransactionTotals(InMonth(txs, year, month))
}

// InMonth returns the transactions dated in the given month, preserving order.
func InMonth(txs []Transaction, year, month int) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.Date.In(year, month) {
			out = append(out, tx)
		}
	}
	return out
}

// FilterByType returns the transactions of the given type; an empty type keeps all.
func FilterByType(txs []Transaction, typ TransactionType) []Transaction {
	if typ == "" {
		return txs
	}
	var out []Transaction
	for _, tx := range txs {
		if tx.Type == typ {
			out = append(out, tx)
		}
	}
	return out
}

// DaysInMonth returns the number of calendar days of the month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AveragePerCalendarDay divides total by the number of calendar days in the month.
func AveragePerCalendarDay(total Amount, year, month int) Amount {
	days := decimal.NewFromInt(int64(DaysInMonth(year, month)))
	return amountFromDecimal(total.Decimal().Div(days))
}

// AveragePerActiveDay divides the month's total of the given type by the number
// of distinct days that had at least one transaction of that type.
func AveragePerActiveDay(txs []Transaction, year, month int, typ TransactionType) Amount {
	days := map[int]struct{}{}
	var total Amount
	for _, tx := range txs {
		if tx.Type != typ || !tx.Date.In(year, month) {
			continue
		}
		days[tx.Date.Day()] = struct{}{}
		total += tx.Amount
	}
	if len(days) == 0 {
		return 0
	}
	return amountFromDecimal(total.Decimal().Div(decimal.NewFromInt(int64(len(days)))))
}

// LoanTotals sums outstanding loans per direction. Anything not marked paid counts.
func LoanTotals(loans []Loan) LoanSummary {
	var s LoanSummary
	for _, l := range loans {
		if l.Status == Paid {
			continue
		}
		switch l.Type {
		case Get:
			s.Get += l.Amount
		case Give:
			s.Give += l.Amount
		}
	}
	return s
}

// DeriveBalances recomputes every wallet balance as its initial balance plus the
// signed sum of its transactions. The input slice is not modified.
func DeriveBalances(wallets []Wallet, txs []Transaction) []Wallet {
	net := make(map[ID]Amount, len(wallets))
	for _, tx := range txs {
		net[tx.WalletID] += tx.Signed()
	}
	out := make([]Wallet, len(wallets))
	for i, w := range wallets {
		w.Balance = w.InitialBalance + net[w.ID]
		out[i] = w
	}
	return out
}
