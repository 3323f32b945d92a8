package checkout

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/avirag26/scholaro-api/internal/payment"
)

// Redirects builds storefront result URLs.
type Redirects struct {
	BaseURL string
}

func (r Redirects) base() string { return strings.TrimRight(r.BaseURL, "/") }

// Success is the order-success page for an internal order id.
func (r Redirects) Success(orderID uuid.UUID) string {
	return r.base() + "/order-success/" + orderID.String()
}

// Failure is the payment-failed page carrying the failure as query params.
func (r Redirects) Failure(f payment.Failure) string {
	q := url.Values{}
	q.Set("error_code", f.Code())
	q.Set("error_description", f.Description)
	if f.OrderID != "" {
		q.Set("order_id", f.OrderID)
	}
	if f.PaymentID != "" {
		q.Set("payment_id", f.PaymentID)
	}
	return r.base() + "/payment-failed?" + q.Encode()
}

// For returns the redirect for sess, or "" while the flow is still open.
func (r Redirects) For(sess Session) string {
	switch {
	case sess.State == StateCompleted && sess.OrderID != nil:
		return r.Success(*sess.OrderID)
	case sess.State == StateFailed && sess.Failure != nil:
		return r.Failure(*sess.Failure)
	default:
		return ""
	}
}
