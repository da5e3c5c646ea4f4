package model

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals of both the contribution currency and the sale token.
const Decimals = 18

// ParseUnits converts a non-negative decimal string such as "1.5" into base
// units.
func ParseUnits(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", raw)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", raw, Decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: too large", raw)
	}
	return v, nil
}

// FormatUnits renders base units as a decimal string.
func FormatUnits(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -Decimals).String()
}
