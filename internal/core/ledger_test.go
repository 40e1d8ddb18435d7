package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func tx(id string, typ TransactionType, amount Amount, wallet string, y, m, d int) Transaction {
	return Transaction{
		ID:       ID(id),
		Title:    id,
		Amount:   amount,
		Type:     typ,
		Category: DefaultCategory,
		WalletID: ID(wallet),
		Date:     NewDate(y, m, d),
	}
}

func TestWalletTotal(t *testing.T) {
	wallets := []Wallet{{ID: "a", Balance: 100000}, {ID: "b", Balance: -2500}, {ID: "c", Balance: 40000}}
	assert.Equal(t, Amount(137500), WalletTotal(wallets))

	reversed := []Wallet{wallets[2], wallets[1], wallets[0]}
	assert.Equal(t, WalletTotal(wallets), WalletTotal(reversed), "total must not depend on order")
	assert.Equal(t, Amount(0), WalletTotal(nil))
}

func TestMonthlyTotalsNetMatchesBalanceChange(t *testing.T) {
	txs := []Transaction{
		tx("salary", Income, 5000000, "w1", 2024, 3, 1),
		tx("coffee", Expense, 27000, "w1", 2024, 3, 1),
		tx("rent", Expense, 1500000, "w2", 2024, 3, 5),
		tx("bonus", Income, 250000, "w2", 2024, 4, 1),
	}
	totals := MonthlyTotals(txs, 2024, 3)
	assert.Equal(t, Amount(5000000), totals.Income)
	assert.Equal(t, Amount(1527000), totals.Expense)

	wallets := []Wallet{{ID: "w1"}, {ID: "w2"}}
	var change Amount
	for _, w := range DeriveBalances(wallets, InMonth(txs, 2024, 3)) {
		change += w.Balance
	}
	assert.Equal(t, change, totals.Net())
}

func TestAverages(t *testing.T) {
	txs := []Transaction{
		tx("a", Expense, 30000, "w1", 2024, 2, 1),
		tx("b", Expense, 10000, "w1", 2024, 2, 1),
		tx("c", Expense, 20000, "w1", 2024, 2, 15),
		tx("d", Income, 290000, "w1", 2024, 2, 20),
	}
	// February 2024 has 29 days.
	assert.Equal(t, 29, DaysInMonth(2024, 2))
	assert.Equal(t, Amount(2069), AveragePerCalendarDay(60000, 2024, 2))
	assert.Equal(t, Amount(30000), AveragePerActiveDay(txs, 2024, 2, Expense))
	assert.Equal(t, Amount(290000), AveragePerActiveDay(txs, 2024, 2, Income))
	assert.Equal(t, Amount(0), AveragePerActiveDay(txs, 2024, 3, Expense))
}

func TestLoanTotalsExcludesPaid(t *testing.T) {
	loans := []Loan{
		{Type: Get, Amount: 50000, Status: Unpaid},
		{Type: Get, Amount: 30000, Status: Paid},
		{Type: Give, Amount: 10000, Status: Unpaid},
		{Type: Give, Amount: 7000}, // missing status counts as outstanding
		{Type: Give, Amount: 99000, Status: Paid},
	}
	got := LoanTotals(loans)
	assert.Equal(t, Amount(50000), got.Get)
	assert.Equal(t, Amount(17000), got.Give)
}

func TestApplyTransactionToWallet(t *testing.T) {
	w := Wallet{ID: "w1", Balance: 100000, InitialBalance: 100000}
	coffee := Transaction{Title: "Coffee", Amount: 27000, Type: Expense, WalletID: "w1", Date: NewDate(2024, 3, 1)}

	w.Apply(coffee)
	assert.Equal(t, Amount(73000), w.Balance)

	w.Revert(coffee)
	assert.Equal(t, Amount(100000), w.Balance)
}

func TestDeriveBalancesDoesNotMutateInput(t *testing.T) {
	wallets := []Wallet{{ID: "w1", InitialBalance: 100000, Balance: 1}}
	txs := []Transaction{tx("coffee", Expense, 27000, "w1", 2024, 3, 1), tx("other", Income, 5, "w9", 2024, 3, 1)}

	derived := DeriveBalances(wallets, txs)
	assert.Equal(t, Amount(73000), derived[0].Balance)
	assert.Equal(t, Amount(1), wallets[0].Balance)
}

func TestFilterByType(t *testing.T) {
	txs := []Transaction{tx("a", Income, 1, "w", 2024, 1, 1), tx("b", Expense, 1, "w", 2024, 1, 1)}
	assert.Len(t, FilterByType(txs, ""), 2)
	assert.Equal(t, ID("b"), FilterByType(txs, Expense)[0].ID)
	assert.Equal(t, Totals{Income: 1, Expense: 1}, TransactionTotals(txs))
}

func TestMonthlyReport(t *testing.T) {
	txs := []Transaction{
		tx("salary", Income, 3000000, "w1", 2024, 4, 1),
		tx("food", Expense, 900000, "w1", 2024, 4, 2),
		tx("fuel", Expense, 100000, "w1", 2024, 4, 2),
	}
	r := MonthlyReport(txs, 2024, 4)
	assert.Equal(t, Amount(3000000), r.Income)
	assert.Equal(t, Amount(1000000), r.Expense)
	assert.Equal(t, Amount(2000000), r.Net)
	assert.Equal(t, 75, r.IncomeShare)
	assert.Equal(t, 25, r.ExpenseShare)
	assert.Equal(t, Amount(100000), r.IncomePerDay)
	assert.Equal(t, Amount(33333), r.ExpensePerDay)
	assert.Equal(t, Amount(1000000), r.ExpensePerActiveDay)

	empty := MonthlyReport(nil, 2024, 4)
	assert.Equal(t, 0, empty.IncomeShare)
	assert.Equal(t, Amount(0), empty.ExpensePerActiveDay)
}
