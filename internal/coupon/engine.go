package coupon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Validation failures. Their messages are shown to students as-is.
var (
	ErrCodeRequired         = errors.New("coupon code is required")
	ErrCouponNotFound       = errors.New("invalid coupon code")
	ErrCouponInactive       = errors.New("coupon is no longer active")
	ErrCouponNotStarted     = errors.New("coupon is not active yet")
	ErrCouponExpired        = errors.New("coupon has expired")
	ErrUsageLimitReached    = errors.New("coupon usage limit reached")
	ErrPerUserLimitReached  = errors.New("coupon already used the maximum number of times")
	ErrMinimumPurchaseUnmet = errors.New("minimum purchase amount not met")
	ErrWrongTutor           = errors.New("coupon is not valid for this tutor's courses")
	ErrNotEligible          = errors.New("coupon cannot be applied to these courses")
)

// Kind selects how the discount value is interpreted.
type Kind string

const (
	// KindPercentage treats Value as a percentage of the vendor subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed treats Value as a flat amount.
	KindFixed Kind = "fixed"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindPercentage || k == KindFixed }

// Coupon is a tutor-issued discount code.
type Coupon struct {
	ID           uuid.UUID        `json:"id"`
	Code         string           `json:"code"`
	Title        string           `json:"title"`
	TutorID      uuid.UUID        `json:"tutorId"`
	Kind         Kind             `json:"kind"`
	Value        decimal.Decimal  `json:"value"`
	MaxDiscount  *decimal.Decimal `json:"maxDiscount,omitempty"`
	MinPurchase  decimal.Decimal  `json:"minPurchase"`
	UsageLimit   *int             `json:"usageLimit,omitempty"`
	UsedCount    int              `json:"usedCount"`
	PerUserLimit *int             `json:"perUserLimit,omitempty"`
	ValidFrom    *time.Time       `json:"validFrom,omitempty"`
	ValidTo      *time.Time       `json:"validTo,omitempty"`
	IsActive     bool             `json:"isActive"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// NormalizeCode upper-cases and trims a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the coupon against the instant, the vendor subtotal and how
// many times the caller already used it.
func (c Coupon) Validate(now time.Time, subtotal decimal.Decimal, perUserUsed int) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponNotStarted
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && *c.UsageLimit >= 0 && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	if c.PerUserLimit != nil && *c.PerUserLimit > 0 && perUserUsed >= *c.PerUserLimit {
		return ErrPerUserLimitReached
	}
	if subtotal.LessThan(c.MinPurchase) {
		return fmt.Errorf("%w: minimum purchase of %s required", ErrMinimumPurchaseUnmet, c.MinPurchase.StringFixed(2))
	}
	return nil
}

// Discount computes the amount taken off subtotal. The result is capped at
// MaxDiscount for percentage coupons and at subtotal for every kind.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || !c.Value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		discount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil && c.MaxDiscount.IsPositive() && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case KindFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount.Round(2)
}

// Summary is the public face of an applied coupon.
type Summary struct {
	ID    uuid.UUID `json:"id"`
	Code  string    `json:"code"`
	Title string    `json:"title"`
}

// Summary returns the public fields of c.
func (c Coupon) Summary() Summary {
	return Summary{ID: c.ID, Code: c.Code, Title: c.Title}
}
