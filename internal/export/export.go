// Package export writes the transaction list out of the app, either to a
// local CSV file or to a Google Sheet.
package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dompet/internal/core"
)

// Header is the column order of every export.
var Header = []string{"Date", "Type", "Amount", "Category", "Account"}

// Row is one exported transaction.
type Row struct {
	Date     core.Date
	Type     core.TransactionType
	Amount   core.Amount
	Category string
	Account  string
}

// Values renders the row in Header order. Amounts are plain integers so
// spreadsheets read them as numbers.
func (r Row) Values() []string {
	return []string{
		r.Date.String(),
		string(r.Type),
		strconv.FormatInt(int64(r.Amount), 10),
		r.Category,
		r.Account,
	}
}

// Exporter writes rows somewhere and returns a reference to the result.
type Exporter interface {
	Export(ctx context.Context, rows []Row) (string, error)
}

// Rows converts transactions into export rows. The account column falls back
// to the wallet name when the transaction carries none.
func Rows(txs []core.Transaction, wallets []core.Wallet) []Row {
	names := make(map[core.ID]string, len(wallets))
	for _, w := range wallets {
		names[w.ID] = w.Name
	}
	rows := make([]Row, 0, len(txs))
	for _, tx := range txs {
		account := tx.Account
		if account == "" {
			account = names[tx.WalletID]
		}
		rows = append(rows, Row{
			Date:     tx.Date,
			Type:     tx.Type,
			Amount:   tx.Amount,
			Category: tx.Category,
			Account:  account,
		})
	}
	return rows
}

// FileName returns the export file name for the given time and extension.
func FileName(now time.Time, ext string) string {
	now = now.UTC()
	stamp := fmt.Sprintf("%s-%03dZ", now.Format("2006-01-02T15-04-05"), now.Nanosecond()/int(time.Millisecond))
	return "TransactionData_" + stamp + "." + ext
}
