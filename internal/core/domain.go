package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	// Get is money owed to the user, Give is money the user owes.
	Get  LoanType = "get"
	Give LoanType = "give"

	Paid   LoanStatus = "paid"
	Unpaid LoanStatus = "unpaid"

	DefaultCategory = "Uncategorized"

	dateLayout = "2006-01-02"
)

type (
	TransactionType string
	LoanType        string
	LoanStatus      string

	// ID is an entity identifier. Backends hand out both numeric and string ids,
	// both decode into the same string form.
	ID string

	Date struct {
		time.Time
	}

	Wallet struct {
		ID             ID        `json:"id"`
		Name           string    `json:"name"`
		Balance        Amount    `json:"balance"`
		InitialBalance Amount    `json:"initialBalance"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID       ID              `json:"id"`
		Title    string          `json:"title"`
		Amount   Amount          `json:"amount"`
		Type     TransactionType `json:"type"`
		Category string          `json:"category"`
		WalletID ID              `json:"wallet_id"`
		Date     Date            `json:"date"`
		Account  string          `json:"account,omitempty"`
	}

	Loan struct {
		ID       ID         `json:"id"`
		Name     string     `json:"name"`
		Amount   Amount     `json:"amount"`
		Type     LoanType   `json:"type"`
		Note     string     `json:"note"`
		Date     Date       `json:"date"`
		Status   LoanStatus `json:"status"`
		WalletID ID         `json:"wallet_id,omitempty"`
		Account  string     `json:"account,omitempty"`
	}

	// LoanDraft is unsaved loan form input. Amount stays raw so a half-typed
	// value like "1.000." survives a restart.
	LoanDraft struct {
		Name     string `json:"name"`
		Amount   string `json:"amount"`
		Note     string `json:"note"`
		Date     Date   `json:"date"`
		WalletID ID     `json:"wallet_id,omitempty"`
		Account  string `json:"account,omitempty"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidType   = errors.New("invalid type")
	ErrInvalidStatus = errors.New("invalid status")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyName     = errors.New("empty name")
	ErrEmptyWallet   = errors.New("empty wallet id")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD and full RFC3339 timestamps.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// In reports whether the date falls in the given calendar month.
func (d Date) In(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (id ID) String() string {
	return string(id)
}

// IsLocal reports whether the id was synthesized on this device.
func (id ID) IsLocal() bool {
	return strings.HasPrefix(string(id), LocalIDPrefix)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", data, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("decode id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// LocalIDPrefix marks ids created while the backend was unreachable.
const LocalIDPrefix = "local-"

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t LoanType) Valid() bool {
	return t == Get || t == Give
}

func (s LoanStatus) Valid() bool {
	return s == Paid || s == Unpaid
}

// Toggle flips paid and unpaid.
func (s LoanStatus) Toggle() LoanStatus {
	if s == Paid {
		return Unpaid
	}
	return Paid
}

func (w Wallet) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if t.WalletID == "" {
		return ErrEmptyWallet
	}
	return t.Date.Validate()
}

// Normalize trims text fields, lowercases the type and fills the default category.
func (t Transaction) Normalize() Transaction {
	t.Title = strings.TrimSpace(t.Title)
	t.Type = TransactionType(strings.ToLower(strings.TrimSpace(string(t.Type))))
	t.Category = strings.TrimSpace(t.Category)
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	return t
}

func (l Loan) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrEmptyName
	}
	if l.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !l.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, l.Type)
	}
	if l.Status != "" && !l.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, l.Status)
	}
	return l.Date.Validate()
}

// Normalize lowercases type and status and defaults the status to unpaid.
func (l Loan) Normalize() Loan {
	l.Name = strings.TrimSpace(l.Name)
	l.Note = strings.TrimSpace(l.Note)
	l.Type = LoanType(strings.ToLower(strings.TrimSpace(string(l.Type))))
	l.Status = LoanStatus(strings.ToLower(strings.TrimSpace(string(l.Status))))
	if l.Status == "" {
		l.Status = Unpaid
	}
	return l
}

// Loan turns the draft into a loan of the given type.
func (d LoanDraft) Loan(typ LoanType) (Loan, error) {
	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return Loan{}, err
	}
	l := Loan{
		Name:     d.Name,
		Amount:   amount,
		Type:     typ,
		Note:     d.Note,
		Date:     d.Date,
		Status:   Unpaid,
		WalletID: d.WalletID,
		Account:  d.Account,
	}.Normalize()
	return l, l.Validate()
}
