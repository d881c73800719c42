// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and rendering minor-unit integers back to decimal text. No floating point
// value ever touches a Money.
package core

import (
	"strconv"
	"strings"
)

// MinorUnitsPerUnit is the minor-unit base of the ledger currency (paise, cents).
const MinorUnitsPerUnit = 100

// maxSafeUnits prevents overflow when scaling whole units to minor units.
const maxSafeUnits = (1<<63 - 1) / MinorUnitsPerUnit

// ParseMoney converts a user-entered decimal string to minor units.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The integer
// and fractional parts are parsed independently; the fraction is padded to two
// digits when it has one and truncated when it has more than two.
//
// Examples:
//
//	ParseMoney("12.34") -> 1234
//	ParseMoney("12.3")  -> 1230
//	ParseMoney("12.349") -> 1234 (truncated)
//	ParseMoney(".5")    -> 50
func ParseMoney(s string) (Money, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, &FormatError{Input: raw, Reason: "empty amount"}
	}
	s = strings.ReplaceAll(s, ",", ".")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, &FormatError{Input: raw, Reason: "more than one decimal separator"}
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Money{}, &FormatError{Input: raw, Reason: "no digits"}
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return Money{}, &FormatError{Input: raw, Reason: "non-digit character"}
	}
	if intPart == "" {
		intPart = "0"
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > maxSafeUnits {
		return Money{}, &FormatError{Input: raw, Reason: "amount too large"}
	}

	switch {
	case len(fracPart) == 0:
		fracPart = "00"
	case len(fracPart) == 1:
		fracPart += "0"
	case len(fracPart) > 2:
		fracPart = fracPart[:2]
	}
	minor, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Money{}, &FormatError{Input: raw, Reason: "invalid fraction"}
	}
	if units == maxSafeUnits && minor > (1<<63-1)-units*MinorUnitsPerUnit {
		return Money{}, &FormatError{Input: raw, Reason: "amount too large"}
	}

	return Money{Cents: units*MinorUnitsPerUnit + minor}, nil
}

// ParseDecimalToCents is ParseMoney returning the raw minor-unit count.
func ParseDecimalToCents(s string) (int64, error) {
	m, err := ParseMoney(s)
	if err != nil {
		return 0, err
	}
	return m.Cents, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with exactly two fractional digits, e.g. "12.05".
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
	}
	// Work on the unsigned magnitude so MinInt64 renders correctly.
	mag := uint64(cents)
	if cents < 0 {
		mag = uint64(-(cents + 1)) + 1
	}
	units := mag / MinorUnitsPerUnit
	minor := mag % MinorUnitsPerUnit

	var b strings.Builder
	b.WriteString(sign)
	b.WriteString(strconv.FormatUint(units, 10))
	b.WriteByte('.')
	if minor < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatUint(minor, 10))
	return b.String()
}

// Format renders the amount prefixed by a currency symbol, e.g. "₹12.05".
func (m Money) Format(symbol string) string {
	if m.Cents < 0 {
		return "-" + symbol + strings.TrimPrefix(m.String(), "-")
	}
	return symbol + m.String()
}

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Sub returns m - o.
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Cents == 0 }

// Sum adds amounts using integer arithmetic only.
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
