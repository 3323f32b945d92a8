package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/pricing"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
)

// Item is a purchased course snapshot.
type Item struct {
	CourseID uuid.UUID       `json:"courseId"`
	TutorID  uuid.UUID       `json:"tutorId"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
}

// CouponLine is a coupon applied to one vendor group of the order.
type CouponLine struct {
	CouponID uuid.UUID       `json:"couponId"`
	Code     string          `json:"code"`
	TutorID  uuid.UUID       `json:"tutorId"`
	Discount decimal.Decimal `json:"discount"`
}

// Order is a persisted purchase attempt.
type Order struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"userId"`
	Mode               cart.Mode       `json:"mode"`
	Status             Status          `json:"status"`
	Currency           string          `json:"currency"`
	Summary            pricing.Summary `json:"pricing"`
	Gateway            string          `json:"gateway"`
	GatewayOrderID     string          `json:"gatewayOrderId"`
	PaymentID          *string         `json:"paymentId,omitempty"`
	FailureCode        *string         `json:"failureCode,omitempty"`
	FailureDescription *string         `json:"failureDescription,omitempty"`
	Items              []Item          `json:"items"`
	Coupons            []CouponLine    `json:"coupons"`
	CreatedAt          time.Time       `json:"createdAt"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
}

// CourseIDs lists the purchased course ids.
func (o Order) CourseIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.CourseID)
	}
	return ids
}

// Draft is what the client needs to open the hosted payment widget.
type Draft struct {
	GatewayOrderID  string    `json:"gatewayOrderId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	InternalOrderID uuid.UUID `json:"internalOrderId"`
	Key             string    `json:"key"`
}

// AppliedCoupon is a client-selected coupon for one vendor group.
type AppliedCoupon struct {
	TutorID uuid.UUID `json:"tutorId" validate:"required"`
	Code    string    `json:"code" validate:"required"`
}
