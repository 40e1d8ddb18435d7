package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dompet/internal/core"
)

type fakeTokens struct {
	token     string
	err       error
	expired   bool
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) Expire(context.Context) error {
	f.expired = true
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := &fakeTokens{token: "tok"}
	return NewClient(Config{BaseURL: srv.URL + "/api/"}, tokens), tokens
}

func TestListWalletsSendsBearerToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":1,"name":"Cash","balance":"1.000.000","initialBalance":500000}]`))
	})

	wallets, err := c.ListWallets(context.Background())
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, core.ID("1"), wallets[0].ID)
	assert.Equal(t, core.Amount(1000000), wallets[0].Balance)
	assert.Equal(t, core.Amount(500000), wallets[0].InitialBalance)
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	called := false
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	tokens.err = ErrUnauthenticated

	_, err := c.ListLoans(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, called)
}

func TestUnauthorizedExpiresSession(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListTransactions(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, tokens.expired)
}

func TestServerErrorCarriesMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"wallet not found"}`))
	})

	_, err := c.CreateTransaction(context.Background(), core.Transaction{
		Title: "Coffee", Amount: 27000, Type: core.Expense, WalletID: "w1", Date: core.NewDate(2024, 3, 1),
	})
	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "wallet not found", se.Message)
	assert.True(t, IsFallback(err))
}

func TestHTMLResponseIsParseError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>proxy error</body></html>"))
	})

	_, err := c.ListLoans(context.Background())
	assert.ErrorIs(t, err, ErrParse)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, &fakeTokens{token: "tok"})
	_, err := c.ListTransactions(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsTimeout(err))
}

func TestConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, &fakeTokens{token: "tok"})
	err := c.Health(context.Background())
	var ne *NetworkError
	assert.True(t, errors.As(err, &ne))
	assert.Equal(t, "health", ne.Op)
}

func TestListTransactionsSortsNewestFirst(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"a","title":"Old","amount":"10000","type":"expense","wallet_id":"w1","date":"2024-01-05T10:00:00.000Z"},
			{"id":"b","title":"New","amount":20000,"type":"Income","wallet_id":"w1","date":"2024-03-01"},
			{"id":"c","title":"Mid","amount":30000,"type":"expense","category":"Food","wallet_id":"w1","date":"2024-02-10"}
		]`))
	})

	txs, err := c.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []core.ID{"b", "c", "a"}, []core.ID{txs[0].ID, txs[1].ID, txs[2].ID})
	assert.Equal(t, core.Income, txs[0].Type)
	assert.Equal(t, core.DefaultCategory, txs[2].Category)
	assert.Equal(t, core.Amount(10000), txs[2].Amount)
}

func TestListLoansAcceptsMongoIDs(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"_id":"65f0c0ffee","name":"Budi","amount":50000,"type":"GET","date":"2024-03-02"},
			{"id":7,"name":"Sari","amount":20000,"type":"give","status":"paid","date":"2024-03-03"}
		]`))
	})

	loans, err := c.ListLoans(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, core.ID("65f0c0ffee"), loans[0].ID)
	assert.Equal(t, core.Get, loans[0].Type)
	assert.Equal(t, core.Unpaid, loans[0].Status)
	assert.Equal(t, core.ID("7"), loans[1].ID)
	assert.Equal(t, core.Paid, loans[1].Status)
}

func TestCreateLoanPayload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "give", body["type"])
		assert.Equal(t, float64(1000000), body["amount"])
		assert.Equal(t, "w1", body["accountId"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"srv-1","name":"Budi","amount":1000000,"type":"give","date":"2024-03-02T00:00:00Z"}`))
	})

	loan, err := c.CreateLoan(context.Background(), core.Loan{
		Name: "Budi", Amount: 1000000, Type: "Give", Date: core.NewDate(2024, 3, 2), WalletID: "w1",
	})
	require.NoError(t, err)
	assert.Equal(t, core.ID("srv-1"), loan.ID)
	assert.Equal(t, core.Unpaid, loan.Status)
}

func TestUpdateWalletBalance(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/wallets/update-balance/w1", r.URL.Path)
		var body balancePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, core.Amount(27000), body.Amount)
		assert.Equal(t, core.Expense, body.Type)
		w.Write([]byte(`{"message":"ok"}`))
	})

	require.NoError(t, c.UpdateWalletBalance(context.Background(), "w1", 27000, core.Expense))
}

func TestLoginReturnsToken(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body.Email)
		w.Write([]byte(`{"token":"jwt-token"}`))
	})

	tok, err := c.Login(context.Background(), " a@b.c ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", tok)
}

func TestLoginWithoutTokenIsParseError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"welcome"}`))
	})

	_, err := c.Login(context.Background(), "a@b.c", "secret")
	assert.ErrorIs(t, err, ErrParse)
}
