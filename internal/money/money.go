// Package money converts integer cent amounts for display and ratios.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pesos converts cents to a decimal peso amount.
func Pesos(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatPesos renders cents as a fixed two-decimal peso string, e.g. "1234.50".
func FormatPesos(cents int64) string {
	return Pesos(cents).StringFixed(2)
}

// Margin is (sale - cost) / cost * 100. Callers must pass a positive cost.
func Margin(costCents int64, saleCents int64) decimal.Decimal {
	cost := decimal.NewFromInt(costCents)
	return decimal.NewFromInt(saleCents).Sub(cost).Div(cost).Mul(hundred)
}

// MarginPercent is Margin with two decimals. A zero cost yields "".
func MarginPercent(costCents int64, saleCents int64) string {
	if costCents <= 0 {
		return ""
	}
	return Margin(costCents, saleCents).StringFixed(2)
}

// ShareOfRevenue is profit / revenue * 100 with two decimals, "0.00" when
// revenue is zero.
func ShareOfRevenue(profitCents int64, revenueCents int64) string {
	if revenueCents == 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromInt(profitCents).Div(decimal.NewFromInt(revenueCents)).Mul(hundred).StringFixed(2)
}
