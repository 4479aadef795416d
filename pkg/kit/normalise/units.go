package normalise

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// HbarDecimals is the number of tinybar places in one HBAR.
const HbarDecimals = 8

// ToBaseUnits converts a display amount into integer base units.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	if decimals < 0 {
		return 0, fmt.Errorf("negative decimals %d", decimals)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s must not be negative", amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows base units", amount)
	}
	return shifted.IntPart(), nil
}

// sumBaseUnits adds a positive leg to a running total of base units.
func sumBaseUnits(total, amount int64) (int64, error) {
	if amount > 0 && total > math.MaxInt64-amount {
		return 0, invalid("total amount overflows base units")
	}
	return total + amount, nil
}

// ToDisplayUnits converts integer base units into a display amount.
func ToDisplayUnits(base int64, decimals int32) decimal.Decimal {
	return decimal.New(base, -decimals)
}

// HbarToTinybars converts HBAR into tinybars.
func HbarToTinybars(amount decimal.Decimal) (int64, error) {
	return ToBaseUnits(amount, HbarDecimals)
}
