// Package money provides the fixed-precision decimal handling the payment
// core requires: every monetary comparison in the core runs through
// shopspring/decimal so "0.99000000" vs "1.00000000" never suffers the
// round-off a binary float comparison would introduce.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits the core formats amounts with.
// BTC and ETH (and the ERC-20 tokens the registry supports) all use 8
// decimal places for canonical string amounts.
const Scale = 8

// Parse parses a decimal string amount, rejecting negative values.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return d, nil
}

// MustParse parses a decimal string, panicking on failure. Reserved for
// fixed literals (chain profile constants, test fixtures) where the input
// is known at compile time.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a decimal amount as a canonical fixed-point string.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Ratio returns |a| / b as a float64 for threshold comparisons. b must be
// non-zero; callers are expected to have already special-cased b == 0.
func Ratio(a, b decimal.Decimal) float64 {
	f, _ := a.Abs().Div(b).Float64()
	return f
}
