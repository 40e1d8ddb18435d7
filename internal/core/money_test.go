package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out Amount
		ok  bool
	}{
		{"1", 1, true},
		{"27000", 27000, true},
		{"1.000", 1000, true},
		{"1.000.000", 1000000, true},
		{"Rp1.000.000", 1000000, true},
		{" 2.500 ", 2500, true},
		{"1.500,75", 1501, true}, // half-up rounding
		{"27000.00", 27000, true},
		{"12.5", 13, true},
		{"0", 0, true},
		{"-5.000", -5000, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1,2,3", 0, false},
		{"", 0, false},
		{".", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in  Amount
		out string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.000"},
		{27000, "27.000"},
		{1000000, "1.000.000"},
		{-73000, "-73.000"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.out {
			t.Fatalf("%d expected %q, got %q", tc.in, tc.out, got)
		}
	}
	if got := FormatRupiah(1000000); got != "Rp1.000.000" {
		t.Fatalf("unexpected rupiah format %q", got)
	}
	if got := FormatRupiah(-500); got != "-Rp500" {
		t.Fatalf("unexpected negative rupiah format %q", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, a := range []Amount{1, 12, 999, 1000, 27000, 1000000, 123456789} {
		s := FormatAmount(a)
		back, err := ParseAmount(s)
		if err != nil || back != a {
			t.Fatalf("%d -> %q -> %d (err=%v)", a, s, back, err)
		}
		if again := FormatAmount(back); again != s {
			t.Fatalf("format not idempotent: %q vs %q", s, again)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	var v struct {
		A Amount `json:"a"`
	}
	for in, want := range map[string]Amount{
		`{"a": 27000}`:       27000,
		`{"a": 27000.4}`:     27000,
		`{"a": "27000"}`:     27000,
		`{"a": "1.000.000"}`: 1000000,
		`{"a": null}`:        0,
		`{"a": ""}`:          0,
	} {
		v.A = -1
		if err := json.Unmarshal([]byte(in), &v); err != nil || v.A != want {
			t.Fatalf("%s expected %d, got %d (err=%v)", in, want, v.A, err)
		}
	}
	out, _ := json.Marshal(Amount(73000))
	if string(out) != "73000" {
		t.Fatalf("amount should marshal as a bare number, got %s", out)
	}
}
