package checkout

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/payment"
)

func TestRedirectFailureParams(t *testing.T) {
	r := Redirects{BaseURL: "https://learn.example.com/"}
	raw := r.Failure(payment.Failure{
		Kind:        payment.KindCardDeclined,
		Description: "Card declined & retried",
		OrderID:     "ord_1",
		PaymentID:   "pay_1",
	})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/payment-failed", u.Path)
	q := u.Query()
	require.Equal(t, "CARD_DECLINED", q.Get("error_code"))
	require.Equal(t, "Card declined & retried", q.Get("error_description"))
	require.Equal(t, "ord_1", q.Get("order_id"))
	require.Equal(t, "pay_1", q.Get("payment_id"))
}

func TestRedirectOmitsEmptyIDs(t *testing.T) {
	raw := Redirects{BaseURL: "https://x"}.Failure(payment.Failure{Kind: payment.KindUserCancelled, Description: "Payment cancelled by user"})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.False(t, u.Query().Has("order_id"))
	require.False(t, u.Query().Has("payment_id"))
}

func TestRedirectFor(t *testing.T) {
	r := Redirects{BaseURL: "https://x"}
	id := uuid.New()
	require.Equal(t, "", r.For(Session{State: StateWidgetOpen}))
	require.Equal(t, "https://x/order-success/"+id.String(), r.For(Session{State: StateCompleted, OrderID: &id}))
}
