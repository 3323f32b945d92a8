package pricing

import "github.com/shopspring/decimal"

// DefaultTaxBps is the flat tax rate applied after coupons (3%).
const DefaultTaxBps = 300

// Summary carries every intermediate of an order total.
type Summary struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	CouponDiscount       decimal.Decimal `json:"couponDiscount"`
	SubtotalAfterCoupons decimal.Decimal `json:"subtotalAfterCoupons"`
	Tax                  decimal.Decimal `json:"tax"`
	TaxBps               int             `json:"taxBps"`
	Final                decimal.Decimal `json:"-"`
	Total                decimal.Decimal `json:"total"`
	AmountMinor          int64           `json:"amountMinor"`
}

// Compose combines a subtotal, coupon discounts and tax into a Summary.
// Coupons are subtracted first and the result is clamped at zero; tax is
// computed on what remains. Total is AmountMinor expressed in major units, so
// the displayed figure and the charged figure come from the same rounding.
func Compose(subtotal decimal.Decimal, couponDiscounts []decimal.Decimal, taxBps int) Summary {
	if taxBps < 0 {
		taxBps = 0
	}
	discount := decimal.Zero
	for _, d := range couponDiscounts {
		if d.IsPositive() {
			discount = discount.Add(d)
		}
	}
	after := subtotal.Sub(discount)
	if after.IsNegative() {
		after = decimal.Zero
	}
	tax := after.Mul(decimal.NewFromInt(int64(taxBps))).Div(bpsBase)
	final := after.Add(tax)
	minor := ToMinor(final)
	return Summary{
		Subtotal:             subtotal,
		CouponDiscount:       discount,
		SubtotalAfterCoupons: after,
		Tax:                  tax,
		TaxBps:               taxBps,
		Final:                final,
		Total:                FromMinor(minor),
		AmountMinor:          minor,
	}
}
