package core

import "github.com/shopspring/decimal"

// Report is the monthly overview shown on the report screen.
type Report struct {
	Year  int
	Month int // 1-12

	Income  Amount
	Expense Amount
	Net     Amount

	// Whole-percent share of income and expense in their combined total.
	IncomeShare  int
	ExpenseShare int

	// Headline daily averages, divided by calendar days.
	IncomePerDay  Amount
	ExpensePerDay Amount

	// Averages over days that had at least one transaction of the type.
	IncomePerActiveDay  Amount
	ExpensePerActiveDay Amount
}

// MonthlyReport builds the report for one month from a flat transaction list.
func MonthlyReport(txs []Transaction, year, month int) Report {
	totals := MonthlyTotals(txs, year, month)
	r := Report{
		Year:                year,
		Month:               month,
		Income:              totals.Income,
		Expense:             totals.Expense,
		Net:                 totals.Net(),
		IncomePerDay:        AveragePerCalendarDay(totals.Income, year, month),
		ExpensePerDay:       AveragePerCalendarDay(totals.Expense, year, month),
		IncomePerActiveDay:  AveragePerActiveDay(txs, year, month, Income),
		ExpensePerActiveDay: AveragePerActiveDay(txs, year, month, Expense),
	}
	r.IncomeShare, r.ExpenseShare = shares(totals.Income, totals.Expense)
	return r
}

func shares(income, expense Amount) (int, int) {
	sum := income + expense
	if sum == 0 {
		return 0, 0
	}
	hundred := decimal.NewFromInt(100)
	in := income.Decimal().Mul(hundred).Div(sum.Decimal()).Round(0).IntPart()
	ex := expense.Decimal().Mul(hundred).Div(sum.Decimal()).Round(0).IntPart()
	return int(in), int(ex)
}
