// Package core provides money parsing and handling utilities.
//
// Amounts are whole rupiah. User input and some backend responses carry them as
// Indonesian-formatted strings ("1.000.000"), which ParseAmount turns back into
// numbers; FormatAmount produces the same grouping for display.
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Amount is a signed amount of whole rupiah.
type Amount int64

var idPrinter = message.NewPrinter(language.Indonesian)

// ParseAmount converts a user or backend supplied amount string to an Amount.
//
// Dots are treated as thousands separators when every group after the first has
// exactly three digits ("1.000.000"); otherwise a single dot is a decimal point
// ("27000.50"). A comma is always the decimal separator. Fractions are rounded
// half-up to whole rupiah. An optional "Rp" prefix is ignored.
//
// Examples:
//   ParseAmount("1.000.000") -> 1000000, nil
//   ParseAmount("27000")     -> 27000, nil
//   ParseAmount("1.500,75")  -> 1501, nil
//   ParseAmount("12.5")      -> 13, nil
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "Rp")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")

	intPart, fracPart, hasComma := strings.Cut(s, ",")
	if hasComma {
		intPart = strings.ReplaceAll(intPart, ".", "")
	} else if isGrouped(intPart) {
		intPart = strings.ReplaceAll(intPart, ".", "")
	} else {
		intPart, fracPart, _ = strings.Cut(intPart, ".")
	}
	if strings.ContainsAny(fracPart, ".,") {
		return 0, ErrInvalidAmount
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return amountFromDecimal(d), nil
}

// isGrouped reports whether s looks like "1.000" or "12.345.678".
func isGrouped(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) < 2 {
		return false
	}
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func amountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Round(0).IntPart())
}

// FormatAmount renders the amount with Indonesian thousands grouping and no decimals.
func FormatAmount(a Amount) string {
	return idPrinter.Sprintf("%d", int64(a))
}

// FormatRupiah renders the amount with the currency prefix, e.g. "Rp1.000.000".
func FormatRupiah(a Amount) string {
	if a < 0 {
		return "-Rp" + FormatAmount(-a)
	}
	return "Rp" + FormatAmount(a)
}

func (a Amount) String() string {
	return FormatAmount(a)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(a))
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(a), 10)), nil
}

// UnmarshalJSON accepts numbers ("27000", "27000.0") and strings holding either a
// plain or an Indonesian-formatted amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*a = 0
			return nil
		}
		v, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return ErrInvalidAmount
	}
	*a = amountFromDecimal(d)
	return nil
}
