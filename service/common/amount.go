package common

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseTokenAmount converts a decimal amount in token units ("1.5") to base
// units using the mint's decimals.
func ParseTokenAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	base := d.Shift(int32(decimals))
	if !base.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	if !base.IsPositive() {
		return 0, fmt.Errorf("amount %q must be positive", s)
	}

	bi := base.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q is too large", s)
	}

	return bi.Uint64(), nil
}

// FormatTokenAmount is the inverse of ParseTokenAmount.
func FormatTokenAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}
