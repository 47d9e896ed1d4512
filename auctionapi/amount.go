package auctionapi

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative integral decimal string into base units.
// Exponent forms such as "1e18" and trailing zero fractions such as "100.0" are
// accepted; fractional values are not.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("invalid amount %q: must be a whole number of base units", s)
	}
	amount, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: exceeds 256 bits", s)
	}
	return amount, nil
}

// FormatAmount renders an amount as a decimal string. A nil amount renders as "0".
func FormatAmount(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}
