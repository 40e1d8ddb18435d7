package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/cli"
	"dompet/internal/config"
	"dompet/internal/core"
)

type fakeAPI struct {
	mu      sync.Mutex
	n       int
	offline bool
	wallets []core.Wallet
	txs     []core.Transaction
	loans   []core.Loan
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		// Drop the connection so the client sees a transport failure.
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
		return
	}

	switch {
	case r.URL.Path == "/health":
		w.Write([]byte(`{"status":"ok"}`))
	case r.URL.Path == "/auth/login":
		w.Write([]byte(`{"token":"tok"}`))
	case r.Header.Get("Authorization") != "Bearer tok":
		w.WriteHeader(http.StatusUnauthorized)
	case r.Method == http.MethodGet && r.URL.Path == "/wallets":
		json.NewEncoder(w).Encode(f.wallets)
	case r.Method == http.MethodPost && r.URL.Path == "/wallets":
		var wl core.Wallet
		json.NewDecoder(r.Body).Decode(&wl)
		f.n++
		wl.ID = core.ID(fmt.Sprintf("w%d", f.n))
		f.wallets = append(f.wallets, wl)
		json.NewEncoder(w).Encode(wl)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/wallets/update-balance/"):
		id := core.ID(strings.TrimPrefix(r.URL.Path, "/wallets/update-balance/"))
		var body struct {
			Amount core.Amount          `json:"amount"`
			Type   core.TransactionType `json:"type"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		for i := range f.wallets {
			if f.wallets[i].ID == id {
				f.wallets[i].Apply(core.Transaction{Amount: body.Amount, Type: body.Type})
			}
		}
		w.Write([]byte(`{"message":"ok"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/transactions":
		json.NewEncoder(w).Encode(f.txs)
	case r.Method == http.MethodPost && r.URL.Path == "/transactions":
		var tx core.Transaction
		json.NewDecoder(r.Body).Decode(&tx)
		f.n++
		tx.ID = core.ID(fmt.Sprintf("t%d", f.n))
		f.txs = append(f.txs, tx)
		json.NewEncoder(w).Encode(tx)
	case r.Method == http.MethodGet && r.URL.Path == "/loans":
		json.NewEncoder(w).Encode(f.loans)
	case r.Method == http.MethodPost && r.URL.Path == "/loans":
		var l core.Loan
		json.NewDecoder(r.Body).Decode(&l)
		f.n++
		l.ID = core.ID(fmt.Sprintf("l%d", f.n))
		f.loans = append(f.loans, l)
		json.NewEncoder(w).Encode(l)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func newTestApp(t *testing.T) (*cli.App, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		BaseURL:        srv.URL,
		RequestTimeout: time.Second,
		WalletsTimeout: time.Second,
		LoansTimeout:   time.Second,
		StoreBackend:   config.StoreMemory,
		SyncMaxRetries: 3,
		ExportDir:      filepath.Join(t.TempDir(), "exports"),
	}
	app, err := cli.NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app, api
}

func exec(t *testing.T, app *cli.App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), app, args, &out)
	return out.String(), err
}

func mustExec(t *testing.T, app *cli.App, args ...string) string {
	t.Helper()
	out, err := exec(t, app, args...)
	require.NoError(t, err, out)
	return out
}

func TestUnknownCommand(t *testing.T) {
	app, _ := newTestApp(t)
	out, err := exec(t, app, "frobnicate")
	assert.True(t, errors.Is(err, errUsage))
	assert.Contains(t, out, "add-tx")
}

func TestWalletAndTransactionFlow(t *testing.T) {
	app, _ := newTestApp(t)

	mustExec(t, app, "login", "-email", "a@b.c", "-password", "pw")
	assert.Contains(t, mustExec(t, app, "add-wallet", "-name", "Cash", "-balance", "100.000"), "Wallet w1 saved")
	assert.Contains(t, mustExec(t, app, "add-tx",
		"-title", "Coffee", "-amount", "27000", "-type", "expense",
		"-category", "Food", "-wallet", "w1", "-date", "2024-03-01"), "Transaction t2 saved")

	out := mustExec(t, app, "wallets")
	assert.Contains(t, out, "Rp73.000")

	out = mustExec(t, app, "transactions", "-month", "2024-03")
	assert.Contains(t, out, "Coffee")
	assert.Contains(t, out, "-Rp27.000")

	out = mustExec(t, app, "report", "-month", "2024-03", "-overview")
	assert.Contains(t, out, "Rp27.000")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "Rp73.000")

	mustExec(t, app, "edit-tx", "-id", "t2", "-amount", "30000")
	assert.Contains(t, mustExec(t, app, "wallets"), "Rp70.000")

	assert.Contains(t, mustExec(t, app, "delete-tx", "-id", "t2"), "Transaction deleted")
	assert.Contains(t, mustExec(t, app, "wallets"), "Rp100.000")
}

func TestOfflineWriteThenSync(t *testing.T) {
	app, api := newTestApp(t)
	mustExec(t, app, "login", "-email", "a@b.c", "-password", "pw")
	mustExec(t, app, "add-wallet", "-name", "Cash", "-balance", "50000")

	api.setOffline(true)
	out := mustExec(t, app, "add-tx", "-title", "Lunch", "-amount", "20000", "-wallet", "w1", "-date", "2024-03-02")
	assert.Contains(t, out, "saved locally")

	_, err := exec(t, app, "sync")
	assert.Error(t, err)

	api.setOffline(false)
	out = mustExec(t, app, "sync")
	assert.Contains(t, out, "Replayed 2, abandoned 0, remaining 0")
}

func TestLoanAndDraftCommands(t *testing.T) {
	app, _ := newTestApp(t)
	mustExec(t, app, "login", "-email", "a@b.c", "-password", "pw")

	mustExec(t, app, "draft", "-type", "get", "-name", "Budi", "-amount", "1.000.")
	assert.Contains(t, mustExec(t, app, "draft", "-type", "get"), `amount="1.000."`)

	mustExec(t, app, "draft", "-type", "get", "-amount", "50.000", "-date", "2024-03-05")
	assert.Contains(t, mustExec(t, app, "draft", "-type", "get", "-submit"), "Loan l1 saved")
	assert.Contains(t, mustExec(t, app, "draft", "-type", "get"), `name=""`)

	out := mustExec(t, app, "loans")
	assert.Contains(t, out, "Budi")
	assert.Contains(t, out, "Rp50.000")

	assert.Contains(t, mustExec(t, app, "loan-status", "-id", "l1"), "is paid")
	assert.Contains(t, mustExec(t, app, "loan-status", "-id", "l1", "-status", "unpaid"), "is unpaid")
	assert.Contains(t, mustExec(t, app, "delete-loan", "-id", "l1"), "Loan deleted")
}

func TestExportCSV(t *testing.T) {
	app, _ := newTestApp(t)
	mustExec(t, app, "login", "-email", "a@b.c", "-password", "pw")
	mustExec(t, app, "add-wallet", "-name", "Cash", "-balance", "100000")
	mustExec(t, app, "add-tx", "-title", "Coffee", "-amount", "27000", "-category", "Food", "-wallet", "w1", "-date", "2024-03-01")

	out := mustExec(t, app, "export")
	assert.Contains(t, out, "Exported 1 transactions")

	entries, err := os.ReadDir(app.Config.ExportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(app.Config.ExportDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2024-03-01,expense,27000,Food,Cash")

	_, err = exec(t, app, "export", "-sheets")
	assert.Error(t, err, "sheets export needs GOOGLE_SPREADSHEET_ID")
}

func TestLogoutRequiresLoginAgain(t *testing.T) {
	app, _ := newTestApp(t)
	mustExec(t, app, "login", "-email", "a@b.c", "-password", "pw")
	mustExec(t, app, "logout")

	_, err := exec(t, app, "add-wallet", "-name", "Cash")
	assert.Error(t, err)
}
