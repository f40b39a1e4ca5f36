package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the decimal precision of the staking token.
const TokenDecimals = 18

// ParseAmount converts a user-supplied decimal amount string into token base
// units. It rejects empty, non-numeric, non-finite, zero, and negative
// values, wrapping ErrValidation so callers can classify the failure as
// local (pre-network).
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q is not a number", ErrValidation, s)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	scaled := d.Shift(TokenDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrValidation, s, TokenDecimals)
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders base units back into a human decimal string.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).String()
}
