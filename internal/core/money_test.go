package core

import (
	"errors"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.5", 150, true},      // padded
		{"1.005", 100, true},    // truncated, never rounded
		{"12.349", 1234, true},  // truncated
		{" 2.50 ", 250, true},
		{".5", 50, true},
		{"7.", 700, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1e3", 0, false},
		{"1.2.3", 0, false},
		{"1,2.3", 0, false},
		{".", 0, false},
		{"", 0, false},
		{"   ", 0, false},
		{"99999999999999999999", 0, false},
		{"92233720368547758.08", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("%q expected *FormatError, got %T", tc.in, err)
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected error to match ErrInvalidAmount", tc.in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{50, "0.50"},
		{100, "1.00"},
		{123456789, "1234567.89"},
		{-1, "-0.01"},
		{-1050, "-10.50"},
		{1<<63 - 1, "92233720368547758.07"},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.cents}).String(); got != tc.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tc.cents, got, tc.want)
		}
	}
}

func TestMoneyFormat(t *testing.T) {
	if got := (Money{Cents: 1205}).Format("₹"); got != "₹12.05" {
		t.Errorf("Format() = %q, want ₹12.05", got)
	}
	if got := (Money{Cents: -1205}).Format("$"); got != "-$12.05" {
		t.Errorf("Format() = %q, want -$12.05", got)
	}
}

func TestMoneyRoundTrip(t *testing.T) {
	values := []int64{0, 1, 9, 10, 99, 100, 101, 12345, 67890, 100000000, maxSafeUnits*MinorUnitsPerUnit + 7}
	for _, v := range values {
		m := Money{Cents: v}
		got, err := ParseMoney(m.String())
		if err != nil {
			t.Fatalf("ParseMoney(%q) error: %v", m.String(), err)
		}
		if got != m {
			t.Errorf("round trip %d -> %q -> %d", v, m.String(), got.Cents)
		}
	}
}

func TestDecimalStringNormalizes(t *testing.T) {
	cases := map[string]string{
		"12":    "12.00",
		"12.3":  "12.30",
		"12.30": "12.30",
		"0.07":  "0.07",
		"007.1": "7.10",
	}
	for in, want := range cases {
		m, err := ParseMoney(in)
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", in, err)
		}
		if got := m.String(); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSumIsExact(t *testing.T) {
	got := Sum(Money{Cents: 12345}, Money{Cents: 67890}, Money{Cents: 1})
	if got.Cents != 80236 {
		t.Fatalf("Sum = %d, want 80236", got.Cents)
	}
	if !Sum().IsZero() {
		t.Fatalf("empty Sum should be zero")
	}
}
