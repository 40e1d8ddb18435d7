package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"dompet/internal/core"
	"dompet/internal/export"
)

type fakeSheet struct {
	rows     [][]any
	appended [][]any
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		f.rows = append(f.rows, vr.Values...)
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Transactions!A1:E2"},
		})
	case r.Method == http.MethodGet:
		values := f.rows
		if len(values) > 1 {
			values = values[:1]
		}
		json.NewEncoder(w).Encode(map[string]any{"values": values})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeSheet) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", "")
}

func TestExportWritesHeaderOnce(t *testing.T) {
	f := &fakeSheet{}
	c := newTestClient(t, f)
	rows := []export.Row{{Date: core.NewDate(2024, 3, 1), Type: core.Expense, Amount: 27000, Category: "Food", Account: "Cash"}}

	ref, err := c.Export(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, "Transactions!A1:E2", ref)
	require.Len(t, f.appended, 2)
	assert.Equal(t, "Date", f.appended[0][0])
	assert.Equal(t, float64(27000), f.appended[1][2])

	f.appended = nil
	_, err = c.Export(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, f.appended, 1, "header must not be repeated")
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestCredentialsPreferInlineJSON(t *testing.T) {
	raw, err := credentials(context.Background(), Config{CredentialsJSON: `{"type":"service_account"}`, CredentialsFile: "/nonexistent"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(raw))

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err = credentials(context.Background(), Config{})
	assert.Error(t, err)
}
