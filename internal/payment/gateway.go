package payment

import (
	"context"
	"errors"
)

var (
	// ErrSignatureMismatch is returned when a payment callback signature does not verify.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrGatewayUnavailable wraps transport or upstream failures from the gateway.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidRequest is returned for requests the gateway would reject outright.
	ErrInvalidRequest = errors.New("invalid gateway request")
)

// OrderRequest describes the gateway order to mint. AmountMinor is in the
// currency's smallest unit.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// GatewayOrder is the order handle returned by the gateway.
type GatewayOrder struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// Callback is the success payload the hosted widget hands back to the client.
type Callback struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// Gateway abstracts the operations required from the upstream payment gateway.
type Gateway interface {
	Name() string
	// KeyID is the publishable key handed to the client widget.
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	// VerifySignature returns ErrSignatureMismatch when cb was not signed by the gateway.
	VerifySignature(cb Callback) error
	VerifyWebhook(body []byte, signature string) error
}
