package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"dompet/internal/cli"
	"dompet/internal/core"
	"dompet/internal/export"
	"dompet/internal/ledger"
	dlog "dompet/internal/log"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error
}

var commands = map[string]command{
	"login":         {"log in and store the session token", runLogin},
	"register":      {"create an account and log in", runRegister},
	"logout":        {"clear the session and the local mirror", runLogout},
	"health":        {"probe the backend", runHealth},
	"wallets":       {"list wallets and their total", runWallets},
	"add-wallet":    {"create a wallet", runAddWallet},
	"edit-wallet":   {"rename a wallet or set its balance", runEditWallet},
	"delete-wallet": {"remove a wallet from the mirror", runDeleteWallet},
	"transactions":  {"list transactions, optionally for one month", runTransactions},
	"add-tx":        {"record an income or expense", runAddTx},
	"edit-tx":       {"change a transaction", runEditTx},
	"delete-tx":     {"remove a transaction", runDeleteTx},
	"loans":         {"list loans and outstanding totals", runLoans},
	"add-loan":      {"record a loan", runAddLoan},
	"loan-status":   {"set or toggle a loan's paid status", runLoanStatus},
	"delete-loan":   {"remove a loan from the mirror", runDeleteLoan},
	"draft":         {"show, save, submit or clear a loan draft", runDraft},
	"report":        {"monthly income and expense report", runReport},
	"export":        {"export transactions to CSV or Google Sheets", runExport},
	"sync":          {"replay writes made while offline", runSync},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: dompet <command> [flags]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, commands[name].summary)
	}
	tw.Flush()
}

func run(ctx context.Context, app *cli.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	return cmd.run(ctx, app, fs, args[1:], out)
}

func runLogin(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := app.Ledger.Login(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged in")
	return nil
}

func runRegister(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	started, err := app.Ledger.Register(ctx, *email, *password)
	if err != nil {
		return err
	}
	if started {
		fmt.Fprintln(out, "Registered, session started")
	} else {
		fmt.Fprintln(out, "Registered, log in to continue")
	}
	return nil
}

func runLogout(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := app.Ledger.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out")
	return nil
}

func runHealth(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := app.Ledger.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Backend reachable")
	return nil
}

func runWallets(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	wallets, err := app.Ledger.Wallets(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBALANCE")
	for _, w := range wallets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", w.ID, w.Name, core.FormatRupiah(w.Balance))
	}
	fmt.Fprintf(tw, "\tTotal\t%s\n", core.FormatRupiah(core.WalletTotal(wallets)))
	return tw.Flush()
}

func runAddWallet(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	name := fs.String("name", "", "wallet name")
	balance := fs.String("balance", "0", "initial balance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := core.ParseAmount(*balance)
	if err != nil {
		return err
	}
	res, err := app.Ledger.AddWallet(ctx, *name, amount)
	return report(out, "Wallet", res, err)
}

func runEditWallet(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "wallet id")
	name := fs.String("name", "", "new name")
	balance := fs.String("balance", "", "new balance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var amount *core.Amount
	if *balance != "" {
		a, err := core.ParseAmount(*balance)
		if err != nil {
			return err
		}
		amount = &a
	}
	res, err := app.Ledger.EditWallet(ctx, core.ID(*id), *name, amount)
	return report(out, "Wallet", res, err)
}

func runDeleteWallet(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "wallet id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := app.Ledger.DeleteWallet(ctx, core.ID(*id)); err != nil {
		return err
	}
	fmt.Fprintln(out, "Wallet deleted")
	return nil
}

func runTransactions(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	month := fs.String("month", "", "only this month (YYYY-MM)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	txs, err := app.Ledger.Transactions(ctx)
	if err != nil {
		return err
	}
	if *month != "" {
		y, m, err := parseMonth(*month)
		if err != nil {
			return err
		}
		txs = core.InMonth(txs, y, m)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTITLE\tCATEGORY\tWALLET\tAMOUNT")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Title, tx.Category, tx.WalletID, signed(tx))
	}
	totals := core.TransactionTotals(txs)
	fmt.Fprintf(tw, "\t\t\t\tIncome\t%s\n", core.FormatRupiah(totals.Income))
	fmt.Fprintf(tw, "\t\t\t\tExpense\t%s\n", core.FormatRupiah(totals.Expense))
	return tw.Flush()
}

type txFlags struct {
	title, amount, typ, category, wallet, date, account *string
}

func bindTxFlags(fs *flag.FlagSet) txFlags {
	return txFlags{
		title:    fs.String("title", "", "title"),
		amount:   fs.String("amount", "", "amount"),
		typ:      fs.String("type", "", "income or expense"),
		category: fs.String("category", "", "category"),
		wallet:   fs.String("wallet", "", "wallet id"),
		date:     fs.String("date", "", "date (YYYY-MM-DD), default today"),
		account:  fs.String("account", "", "account label"),
	}
}

// apply copies the flags that were set onto tx.
func (f txFlags) apply(tx *core.Transaction, set map[string]bool) error {
	if set["title"] {
		tx.Title = *f.title
	}
	if set["amount"] {
		a, err := core.ParseAmount(*f.amount)
		if err != nil {
			return err
		}
		tx.Amount = a
	}
	if set["type"] {
		tx.Type = core.TransactionType(*f.typ)
	}
	if set["category"] {
		tx.Category = *f.category
	}
	if set["wallet"] {
		tx.WalletID = core.ID(*f.wallet)
	}
	if set["account"] {
		tx.Account = *f.account
	}
	if set["date"] {
		d, err := core.ParseDate(*f.date)
		if err != nil {
			return err
		}
		tx.Date = d
	}
	return nil
}

func runAddTx(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	f := bindTxFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	tx := core.Transaction{Type: core.Expense, Date: today()}
	if err := f.apply(&tx, setFlags(fs)); err != nil {
		return err
	}
	res, err := app.Ledger.AddTransaction(ctx, tx)
	return report(out, "Transaction", res, err)
}

func runEditTx(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "transaction id")
	f := bindTxFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	txs, err := app.Ledger.Transactions(ctx)
	if err != nil {
		return err
	}
	i := indexOf(txs, func(t core.Transaction) bool { return t.ID == core.ID(*id) })
	if i < 0 {
		return fmt.Errorf("transaction %s: %w", *id, ledger.ErrNotFound)
	}
	tx := txs[i]
	if err := f.apply(&tx, setFlags(fs)); err != nil {
		return err
	}
	res, err := app.Ledger.EditTransaction(ctx, tx)
	return report(out, "Transaction", res, err)
}

func runDeleteTx(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "transaction id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	res, err := app.Ledger.DeleteTransaction(ctx, core.ID(*id))
	if err != nil {
		return err
	}
	if res.Committed == ledger.CommitLocalPending {
		fmt.Fprintln(out, "Transaction deleted, balance change queued")
	} else {
		fmt.Fprintln(out, "Transaction deleted")
	}
	return nil
}

func runLoans(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	typ := fs.String("type", "", "only get or give")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loans, err := app.Ledger.Loans(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tNAME\tSTATUS\tAMOUNT")
	for _, l := range loans {
		if *typ != "" && string(l.Type) != *typ {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Date, l.Type, l.Name, l.Status, core.FormatRupiah(l.Amount))
	}
	sum := core.LoanTotals(loans)
	fmt.Fprintf(tw, "\t\t\t\tOwed to you\t%s\n", core.FormatRupiah(sum.Get))
	fmt.Fprintf(tw, "\t\t\t\tYou owe\t%s\n", core.FormatRupiah(sum.Give))
	return tw.Flush()
}

func runAddLoan(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	typ := fs.String("type", "", "get (owed to you) or give (you owe)")
	name := fs.String("name", "", "counterparty")
	amount := fs.String("amount", "", "amount")
	note := fs.String("note", "", "note")
	date := fs.String("date", "", "date (YYYY-MM-DD), default today")
	wallet := fs.String("wallet", "", "wallet id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}
	d := today()
	if *date != "" {
		if d, err = core.ParseDate(*date); err != nil {
			return err
		}
	}
	res, err := app.Ledger.AddLoan(ctx, core.Loan{
		Name:     *name,
		Amount:   a,
		Type:     core.LoanType(*typ),
		Note:     *note,
		Date:     d,
		WalletID: core.ID(*wallet),
	})
	return report(out, "Loan", res, err)
}

func runLoanStatus(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "loan id")
	status := fs.String("status", "", "paid or unpaid; toggles when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		l   core.Loan
		err error
	)
	if *status == "" {
		l, err = app.Ledger.ToggleLoanStatus(ctx, core.ID(*id))
	} else {
		l, err = app.Ledger.SetLoanStatus(ctx, core.ID(*id), core.LoanStatus(*status))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loan %s is %s\n", l.ID, l.Status)
	return nil
}

func runDeleteLoan(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "loan id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := app.Ledger.DeleteLoan(ctx, core.ID(*id)); err != nil {
		return err
	}
	fmt.Fprintln(out, "Loan deleted")
	return nil
}

func runDraft(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	typ := fs.String("type", "", "get or give")
	name := fs.String("name", "", "counterparty")
	amount := fs.String("amount", "", "amount as typed")
	note := fs.String("note", "", "note")
	date := fs.String("date", "", "date (YYYY-MM-DD)")
	submit := fs.Bool("submit", false, "turn the draft into a loan")
	discard := fs.Bool("clear", false, "discard the draft")
	if err := fs.Parse(args); err != nil {
		return err
	}
	lt := core.LoanType(*typ)

	switch {
	case *discard:
		if err := app.Ledger.ClearDraft(ctx, lt); err != nil {
			return err
		}
		fmt.Fprintln(out, "Draft cleared")
		return nil
	case *submit:
		res, err := app.Ledger.SubmitDraft(ctx, lt)
		return report(out, "Loan", res, err)
	}

	d, _, err := app.Ledger.LoadDraft(ctx, lt)
	if err != nil {
		return err
	}
	set := setFlags(fs)
	if set["name"] || set["amount"] || set["note"] || set["date"] {
		if set["name"] {
			d.Name = *name
		}
		if set["amount"] {
			d.Amount = *amount
		}
		if set["note"] {
			d.Note = *note
		}
		if set["date"] {
			if d.Date, err = core.ParseDate(*date); err != nil {
				return err
			}
		}
		if err := app.Ledger.SaveDraft(ctx, lt, d); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Draft %s: name=%q amount=%q note=%q date=%s\n", lt, d.Name, d.Amount, d.Note, d.Date)
	return nil
}

func runReport(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	month := fs.String("month", today().Format("2006-01"), "month (YYYY-MM)")
	overview := fs.Bool("overview", false, "also show wallet, all-time and loan totals")
	if err := fs.Parse(args); err != nil {
		return err
	}
	y, m, err := parseMonth(*month)
	if err != nil {
		return err
	}
	r, err := app.Ledger.Report(ctx, y, m)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if *overview {
		o, err := app.Ledger.Overview(ctx, y, m)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "Wallets\t%s\n", core.FormatRupiah(o.WalletTotal))
		fmt.Fprintf(tw, "All-time net\t%s\n", core.FormatRupiah(o.AllTime.Net()))
		fmt.Fprintf(tw, "Owed to you\t%s\n", core.FormatRupiah(o.Loans.Get))
		fmt.Fprintf(tw, "You owe\t%s\n", core.FormatRupiah(o.Loans.Give))
	}
	fmt.Fprintf(tw, "Report\t%04d-%02d\n", r.Year, r.Month)
	fmt.Fprintf(tw, "Income\t%s\t%d%%\n", core.FormatRupiah(r.Income), r.IncomeShare)
	fmt.Fprintf(tw, "Expense\t%s\t%d%%\n", core.FormatRupiah(r.Expense), r.ExpenseShare)
	fmt.Fprintf(tw, "Net\t%s\n", core.FormatRupiah(r.Net))
	fmt.Fprintf(tw, "Income per day\t%s\t(%s per active day)\n",
		core.FormatRupiah(r.IncomePerDay), core.FormatRupiah(r.IncomePerActiveDay))
	fmt.Fprintf(tw, "Expense per day\t%s\t(%s per active day)\n",
		core.FormatRupiah(r.ExpensePerDay), core.FormatRupiah(r.ExpensePerActiveDay))
	return tw.Flush()
}

func runExport(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	toSheets := fs.Bool("sheets", false, "append to the configured Google Sheet instead of writing CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}
	exporter, err := app.Exporter(ctx, *toSheets)
	if err != nil {
		return err
	}
	snap, err := app.Ledger.Refresh(ctx)
	if err != nil {
		return err
	}
	ref, err := exporter.Export(ctx, export.Rows(snap.Transactions, snap.Wallets))
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Export completed",
		dlog.FieldOperation, dlog.OpExport,
		dlog.FieldExportRef, ref)
	fmt.Fprintf(out, "Exported %d transactions to %s\n", len(snap.Transactions), ref)
	return nil
}

func runSync(ctx context.Context, app *cli.App, fs *flag.FlagSet, args []string, out io.Writer) error {
	retry := fs.Bool("retry-failed", false, "requeue abandoned writes first")
	balances := fs.Bool("reconcile-balances", false, "recompute wallet balances from transactions afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *retry {
		n, err := app.Queue.RetryFailed(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Requeued %d abandoned writes\n", n)
	}

	res, err := app.Reconciler.ReplayAll(ctx)
	fmt.Fprintf(out, "Replayed %d, abandoned %d, remaining %d\n", res.Replayed, res.Abandoned, res.Remaining)
	if err != nil {
		return err
	}

	failed, err := app.Queue.Failed(ctx)
	if err != nil {
		return err
	}
	for _, pw := range failed {
		fmt.Fprintf(out, "  abandoned %s %s: %s\n", pw.Kind, pw.LocalID, pw.LastError)
	}

	if *balances {
		wallets, err := app.Ledger.ReconcileBalances(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Reconciled %d wallet balances\n", len(wallets))
	}
	return nil
}

// report prints the outcome of a write. A local-pending result is still a
// success from the user's point of view.
func report(out io.Writer, what string, res ledger.WriteResult, err error) error {
	if err != nil {
		if res.ID != "" {
			fmt.Fprintf(out, "%s %s saved (%s) but: %v\n", what, res.ID, res.Committed, err)
		}
		return err
	}
	switch res.Committed {
	case ledger.CommitLocalPending:
		fmt.Fprintf(out, "%s %s saved locally, will sync when the backend is reachable\n", what, res.ID)
	default:
		fmt.Fprintf(out, "%s %s saved\n", what, res.ID)
	}
	return nil
}

func signed(tx core.Transaction) string {
	if tx.Type == core.Expense {
		return "-" + core.FormatRupiah(tx.Amount)
	}
	return "+" + core.FormatRupiah(tx.Amount)
}

func parseMonth(s string) (int, int, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return t.Year(), int(t.Month()), nil
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func today() core.Date {
	now := time.Now()
	return core.NewDate(now.Year(), int(now.Month()), now.Day())
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, it := range items {
		if match(it) {
			return i
		}
	}
	return -1
}
