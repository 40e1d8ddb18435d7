// Package remote is the HTTP client for the dompet backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"dompet/internal/core"
)

const (
	DefaultTimeout        = 5 * time.Second
	DefaultLoansTimeout   = 10 * time.Second
	DefaultWalletsTimeout = 15 * time.Second

	maxBodySize = 4 << 20
)

// TokenSource supplies the bearer token and is told when the backend rejects it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Expire(ctx context.Context) error
}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	WalletsTimeout time.Duration
	LoansTimeout   time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource

	timeout        time.Duration
	walletsTimeout time.Duration
	loansTimeout   time.Duration
}

func NewClient(cfg Config, tokens TokenSource) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           cfg.HTTPClient,
		tokens:         tokens,
		timeout:        cfg.Timeout,
		walletsTimeout: cfg.WalletsTimeout,
		loansTimeout:   cfg.LoansTimeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.walletsTimeout <= 0 {
		c.walletsTimeout = DefaultWalletsTimeout
	}
	if c.loansTimeout <= 0 {
		c.loansTimeout = DefaultLoansTimeout
	}
	return c
}

type request struct {
	op      string
	method  string
	path    string
	body    any
	auth    bool
	timeout time.Duration
}

// do performs one round trip. out may be nil when the response body is not needed.
func (c *Client) do(ctx context.Context, r request, out any) error {
	var token string
	if r.auth {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		token = t
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "Backend request failed", "op", r.op, "error", err)
		return &NetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &NetworkError{Op: r.op, Err: fmt.Errorf("read body: %w", err)}
	}

	slog.DebugContext(ctx, "Backend request completed",
		"op", r.op,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if r.auth {
			if err := c.tokens.Expire(context.WithoutCancel(ctx)); err != nil {
				slog.ErrorContext(ctx, "Failed to expire rejected session", "error", err)
			}
		}
		return fmt.Errorf("%s: %w", r.op, ErrUnauthenticated)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &ServerError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return fmt.Errorf("%s: %w: received HTML", r.op, ErrParse)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("%s: %w: %v", r.op, ErrParse, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "login", email, password)
}

// Register creates an account. The backend may or may not log the user in;
// an empty token means it did not.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "register", email, password)
}

func (c *Client) authenticate(ctx context.Context, action, email, password string) (string, error) {
	var resp authResponse
	err := c.do(ctx, request{
		op:      action,
		method:  http.MethodPost,
		path:    "/auth/" + action,
		body:    credentials{Email: strings.TrimSpace(email), Password: password},
		timeout: c.timeout,
	}, &resp)
	if err != nil {
		return "", err
	}
	if action == "login" && resp.Token == "" {
		return "", fmt.Errorf("login: %w: no token in response", ErrParse)
	}
	return resp.Token, nil
}

// Health probes the backend without credentials.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{
		op:      "health",
		method:  http.MethodGet,
		path:    "/health",
		timeout: c.timeout,
	}, nil)
}

func (c *Client) ListWallets(ctx context.Context) ([]core.Wallet, error) {
	var wallets []core.Wallet
	err := c.do(ctx, request{
		op:      "list wallets",
		method:  http.MethodGet,
		path:    "/wallets",
		auth:    true,
		timeout: c.walletsTimeout,
	}, &wallets)
	if err != nil {
		return nil, err
	}
	if wallets == nil {
		wallets = []core.Wallet{}
	}
	return wallets, nil
}

type walletPayload struct {
	Name           string      `json:"name"`
	Balance        core.Amount `json:"balance"`
	InitialBalance core.Amount `json:"initialBalance"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// CreateWallet posts the wallet and returns it as stored by the backend.
func (c *Client) CreateWallet(ctx context.Context, w core.Wallet) (core.Wallet, error) {
	created := w
	err := c.do(ctx, request{
		op:     "create wallet",
		method: http.MethodPost,
		path:   "/wallets",
		body: walletPayload{
			Name:           w.Name,
			Balance:        w.Balance,
			InitialBalance: w.InitialBalance,
			CreatedAt:      w.CreatedAt,
		},
		auth:    true,
		timeout: c.walletsTimeout,
	}, &created)
	if err != nil {
		return core.Wallet{}, err
	}
	if created.ID == "" || created.ID.IsLocal() {
		return core.Wallet{}, fmt.Errorf("create wallet: %w: no id in response", ErrParse)
	}
	return created, nil
}

type balancePayload struct {
	Amount core.Amount          `json:"amount"`
	Type   core.TransactionType `json:"type"`
}

// UpdateWalletBalance applies a signed adjustment on the backend. Income adds
// amount to the balance, expense subtracts it.
func (c *Client) UpdateWalletBalance(ctx context.Context, walletID core.ID, amount core.Amount, typ core.TransactionType) error {
	return c.do(ctx, request{
		op:      "update wallet balance",
		method:  http.MethodPut,
		path:    "/wallets/update-balance/" + walletID.String(),
		body:    balancePayload{Amount: amount, Type: typ},
		auth:    true,
		timeout: c.walletsTimeout,
	}, nil)
}

// ListTransactions returns the transactions newest first.
func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	var txs []core.Transaction
	err := c.do(ctx, request{
		op:      "list transactions",
		method:  http.MethodGet,
		path:    "/transactions",
		auth:    true,
		timeout: c.timeout,
	}, &txs)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Normalize())
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders transactions by date descending, keeping the input
// order for equal dates.
func SortNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
}

type transactionPayload struct {
	Title    string               `json:"title"`
	Amount   core.Amount          `json:"amount"`
	Category string               `json:"category"`
	WalletID core.ID              `json:"wallet_id"`
	Date     core.Date            `json:"date"`
	Type     core.TransactionType `json:"type"`
}

func (c *Client) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = tx.Normalize()
	created := tx
	created.ID = ""
	err := c.do(ctx, request{
		op:     "create transaction",
		method: http.MethodPost,
		path:   "/transactions",
		body: transactionPayload{
			Title:    tx.Title,
			Amount:   tx.Amount,
			Category: tx.Category,
			WalletID: tx.WalletID,
			Date:     tx.Date,
			Type:     tx.Type,
		},
		auth:    true,
		timeout: c.timeout,
	}, &created)
	if err != nil {
		return core.Transaction{}, err
	}
	if created.ID == "" {
		return core.Transaction{}, fmt.Errorf("create transaction: %w: no id in response", ErrParse)
	}
	return created.Normalize(), nil
}

// loanWire accepts both "id" and the Mongo-style "_id".
type loanWire struct {
	core.Loan
	MongoID core.ID `json:"_id"`
}

func (l loanWire) loan() core.Loan {
	out := l.Loan
	if out.ID == "" {
		out.ID = l.MongoID
	}
	return out.Normalize()
}

func (c *Client) ListLoans(ctx context.Context) ([]core.Loan, error) {
	var wire []loanWire
	err := c.do(ctx, request{
		op:      "list loans",
		method:  http.MethodGet,
		path:    "/loans",
		auth:    true,
		timeout: c.loansTimeout,
	}, &wire)
	if err != nil {
		return nil, err
	}
	loans := make([]core.Loan, 0, len(wire))
	for _, w := range wire {
		loans = append(loans, w.loan())
	}
	return loans, nil
}

type loanPayload struct {
	Name      string        `json:"name"`
	Amount    core.Amount   `json:"amount"`
	Note      string        `json:"note"`
	Date      time.Time     `json:"date"`
	Type      core.LoanType `json:"type"`
	Account   string        `json:"account,omitempty"`
	AccountID core.ID       `json:"accountId,omitempty"`
}

func (c *Client) CreateLoan(ctx context.Context, l core.Loan) (core.Loan, error) {
	l = l.Normalize()
	created := loanWire{Loan: l}
	created.ID = ""
	err := c.do(ctx, request{
		op:     "create loan",
		method: http.MethodPost,
		path:   "/loans",
		body: loanPayload{
			Name:      l.Name,
			Amount:    l.Amount,
			Note:      l.Note,
			Date:      l.Date.Time,
			Type:      l.Type,
			Account:   l.Account,
			AccountID: l.WalletID,
		},
		auth:    true,
		timeout: c.loansTimeout,
	}, &created)
	if err != nil {
		return core.Loan{}, err
	}
	out := created.loan()
	if out.ID == "" {
		return core.Loan{}, fmt.Errorf("create loan: %w: no id in response", ErrParse)
	}
	return out, nil
}

// IsTimeout reports whether err is a request that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
