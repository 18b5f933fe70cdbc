// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts an amount in a chain's smallest unit (wei, satoshi,
// lamport, nanoton) to a decimal value in whole coins.
func FromBaseUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// Uint64FromBaseUnits is FromBaseUnits for backends that report uint64 amounts.
func Uint64FromBaseUnits(amount uint64, decimals uint8) decimal.Decimal {
	return FromBaseUnits(new(big.Int).SetUint64(amount), decimals)
}

// ToBaseUnits converts a decimal coin amount to the chain's smallest unit,
// truncating any precision beyond the chain's decimals.
func ToBaseUnits(v decimal.Decimal, decimals uint8) *big.Int {
	return v.Shift(int32(decimals)).Truncate(0).BigInt()
}

// ToBaseUint64 converts a decimal coin amount to uint64 smallest units.
// Fails on negative amounts and on values that overflow uint64.
func ToBaseUint64(v decimal.Decimal, decimals uint8) (uint64, error) {
	n := ToBaseUnits(v, decimals)
	if n.Sign() < 0 {
		return 0, fmt.Errorf("negative amount: %s", v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("amount overflow: %s", v)
	}
	return n.Uint64(), nil
}
