package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/payment"
	"github.com/avirag26/scholaro-api/internal/pricing"
)

// AppliedCoupon is a validated coupon held for one vendor group. Subtotal is
// the vendor subtotal the discount was computed against.
type AppliedCoupon struct {
	TutorID  uuid.UUID             `json:"tutorId"`
	Coupon   coupon.Summary        `json:"coupon"`
	Discount coupon.DiscountAmount `json:"discount"`
	Subtotal decimal.Decimal       `json:"vendorSubtotal"`
}

// Session is the server-side context of one checkout. It replaces state the
// storefront would otherwise keep in browser storage.
type Session struct {
	ID             uuid.UUID                   `json:"id"`
	UserID         uuid.UUID                   `json:"userId"`
	Mode           cart.Mode                   `json:"mode"`
	CourseID       uuid.UUID                   `json:"courseId,omitempty"`
	SelectedTutor  *uuid.UUID                  `json:"selectedTutorId,omitempty"`
	AppliedCoupons map[uuid.UUID]AppliedCoupon `json:"appliedCoupons"`
	State          State                       `json:"state"`
	Failure        *payment.Failure            `json:"failure,omitempty"`
	Draft          *order.Draft                `json:"draft,omitempty"`
	Charged        *pricing.Summary            `json:"chargedSummary,omitempty"`
	Attempt        uuid.UUID                   `json:"attemptId"`
	OrderID        *uuid.UUID                  `json:"orderId,omitempty"`
	CreatedAt      time.Time                   `json:"createdAt"`
	UpdatedAt      time.Time                   `json:"updatedAt"`
}

func newSession(userID uuid.UUID, mode cart.Mode, courseID uuid.UUID, now time.Time) Session {
	return Session{
		ID:             uuid.New(),
		UserID:         userID,
		Mode:           mode,
		CourseID:       courseID,
		AppliedCoupons: map[uuid.UUID]AppliedCoupon{},
		State:          StateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// hasCode reports which tutor, if any, already holds code.
func (s Session) hasCode(code string) (uuid.UUID, bool) {
	for tutor, ac := range s.AppliedCoupons {
		if ac.Coupon.Code == code {
			return tutor, true
		}
	}
	return uuid.Nil, false
}

// orderCoupons lists applied in vendor group order.
func orderCoupons(applied map[uuid.UUID]AppliedCoupon, agg cart.Aggregate) []order.AppliedCoupon {
	out := make([]order.AppliedCoupon, 0, len(applied))
	for _, g := range agg.Groups {
		if ac, ok := applied[g.TutorID]; ok {
			out = append(out, order.AppliedCoupon{TutorID: g.TutorID, Code: ac.Coupon.Code})
		}
	}
	return out
}
