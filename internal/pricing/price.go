// Package pricing turns course list prices, offers and coupon discounts into
// the amounts shown to students and charged through the gateway.
package pricing

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	bpsBase = decimal.NewFromInt(10000)
)

// DiscountedPrice applies a percentage offer to a base price. A zero offer
// returns base unchanged. catalog.Course.FinalPrice screens the offer with
// ValidOffer first.
func DiscountedPrice(base, offerPercentage decimal.Decimal) decimal.Decimal {
	if offerPercentage.IsZero() {
		return base
	}
	return base.Sub(base.Mul(offerPercentage).Div(hundred))
}

// ValidOffer reports whether the percentage lies within [0,100].
func ValidOffer(offerPercentage decimal.Decimal) bool {
	return !offerPercentage.IsNegative() && offerPercentage.LessThanOrEqual(hundred)
}

// ToMinor converts a major-unit amount into integer minor units, rounding half
// away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
