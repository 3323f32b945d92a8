package payment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeByReason(t *testing.T) {
	f := Normalize(GatewayError{
		Code:        "BAD_REQUEST_ERROR",
		Description: "Your payment could not be completed",
		Reason:      "insufficient_funds",
		Metadata:    map[string]any{"order_id": "order_1", "payment_id": "pay_1"},
	})
	require.Equal(t, KindInsufficient, f.Kind)
	require.Equal(t, "INSUFFICIENT_FUNDS", f.Code())
	require.Equal(t, "order_1", f.OrderID)
	require.Equal(t, "pay_1", f.PaymentID)
}

func TestNormalizeFallsBackToDescriptionThenCode(t *testing.T) {
	cases := []struct {
		name string
		in   GatewayError
		want FailureKind
	}{
		{"description expired", GatewayError{Description: "Card has Expired"}, KindExpiredCard},
		{"description declined", GatewayError{Description: "Payment was declined by issuer"}, KindCardDeclined},
		{"code gateway", GatewayError{Code: "GATEWAY_ERROR", Description: "Something odd"}, KindGateway},
		{"code server", GatewayError{Code: "server_error"}, KindServer},
		{"unknown", GatewayError{Code: "WEIRD"}, KindPaymentFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.in).Kind)
		})
	}
}

func TestNormalizeDefaultsDescription(t *testing.T) {
	f := Normalize(GatewayError{})
	require.Equal(t, "Payment failed", f.Description)
	require.Empty(t, f.OrderID)
	require.True(t, KnownKind(f.Kind))
	require.False(t, KnownKind("nope"))
}
