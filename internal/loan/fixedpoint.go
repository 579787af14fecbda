package loan

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Token base-unit scales.
const (
	USDCDecimals = 6
	WeiDecimals  = 18
)

// ToUnits converts a decimal token amount to integer base units.
// Amounts with more fractional digits than the token supports are
// rejected rather than silently truncated.
func ToUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s exceeds %d decimal precision", amount, decimals)
	}
	if scaled.Sign() < 0 {
		return nil, fmt.Errorf("amount %s is negative", amount)
	}
	return scaled.BigInt(), nil
}

// FromUnits converts integer base units to a decimal token amount.
func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, 0).Shift(-decimals)
}
