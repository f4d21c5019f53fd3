package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// Tier targets sit exactly on entry*(1+level); a float64 product can land an
// ulp above the ticker price and silently miss the tier, so target
// comparisons run through decimal.

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

// relativeTarget is base*(1+pct).
func relativeTarget(base, pct float64) float64 {
	if base <= 0 {
		return 0
	}
	f, _ := decFromFloat(base).Mul(decimal.NewFromInt(1).Add(decFromFloat(pct))).Float64()
	return f
}

func priceAtLeast(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decFromFloat(price).Cmp(decFromFloat(target)) >= 0
}

func priceAtMost(price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	return decFromFloat(price).Cmp(decFromFloat(target)) <= 0
}
