// Package core holds the ledger domain model: accounts, transactions,
// categories and money parsing.
//
// Monetary values are decimal.Decimal throughout. Binary floating point is
// never used for amounts, so repeated small transactions cannot accumulate
// rounding drift.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, with
// the other symbol as an optional thousands separator. Returns
// ErrInvalidAmount for unparsable, zero or negative input.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34, nil
//	ParseAmount("12,34")     -> 12.34, nil
//	ParseAmount("1,234.56")  -> 1234.56, nil
//	ParseAmount("1.234,56")  -> 1234.56, nil
//	ParseAmount("-5")        -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(normalizeAmount(s))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// ParseOptionalAmount parses an optional non-negative sub-amount such as a
// principal or interest breakdown. An empty string yields nil.
func ParseOptionalAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(normalizeAmount(s))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return &d, nil
}

// normalizeAmount rewrites an amount to dot-decimal form. When both
// separators appear, the one further right is the decimal separator and
// the other marks thousands. A lone comma is a decimal comma; repeated
// commas without a dot are thousands separators.
func normalizeAmount(s string) string {
	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot { // 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.ReplaceAll(s, ",", ".")
		}
		return strings.ReplaceAll(s, ",", "") // 1,234.56
	case strings.Count(s, ",") > 1: // 1,234,567
		return strings.ReplaceAll(s, ",", "")
	default:
		return strings.ReplaceAll(s, ",", ".")
	}
}
