package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/core"
)

func TestRowsFallsBackToWalletName(t *testing.T) {
	txs := []core.Transaction{
		{ID: "t1", Title: "Coffee", Amount: 27000, Type: core.Expense, Category: "Food", WalletID: "w1", Date: core.NewDate(2024, 3, 1)},
		{ID: "t2", Title: "Salary", Amount: 5000000, Type: core.Income, Category: "Work", WalletID: "w2", Date: core.NewDate(2024, 3, 2), Account: "Payroll"},
	}
	wallets := []core.Wallet{{ID: "w1", Name: "Cash"}, {ID: "w2", Name: "Bank"}}

	rows := Rows(txs, wallets)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-03-01", "expense", "27000", "Food", "Cash"}, rows[0].Values())
	assert.Equal(t, []string{"2024-03-02", "income", "5000000", "Work", "Payroll"}, rows[1].Values())
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 5, 123000000, time.UTC)
	assert.Equal(t, "TransactionData_2024-03-15T09-30-05-123Z.csv", FileName(now, "csv"))
}

func TestCSVWriterExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	w := NewCSVWriter(dir)
	w.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }

	path, err := w.Export(context.Background(), []Row{
		{Date: core.NewDate(2024, 3, 1), Type: core.Expense, Amount: 27000, Category: "Food", Account: "Cash"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "TransactionData_2024-03-15T09-00-00-000Z.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		Header,
		{"2024-03-01", "expense", "27000", "Food", "Cash"},
	}, records)
}
