package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// orderCreator is the subset of the razorpay order resource used here.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay implements Gateway on top of the official razorpay-go client.
type Razorpay struct {
	keyID         string
	keySecret     string
	webhookSecret string
	orders        orderCreator
}

// NewRazorpay builds a gateway client. webhookSecret may be empty when webhooks are not configured.
func NewRazorpay(keyID, keySecret, webhookSecret string) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return &Razorpay{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		orders:        client.Order,
	}
}

// Name implements Gateway.
func (r *Razorpay) Name() string { return "razorpay" }

// KeyID implements Gateway.
func (r *Razorpay) KeyID() string { return r.keyID }

// CreateOrder mints a gateway order for the given amount.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return GatewayOrder{}, fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	data := map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
	}
	if req.Receipt != "" {
		data["receipt"] = req.Receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}
	body, err := r.orders.Create(data, nil)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return parseOrder(body)
}

func parseOrder(body map[string]interface{}) (GatewayOrder, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return GatewayOrder{}, fmt.Errorf("%w: response missing order id", ErrGatewayUnavailable)
	}
	out := GatewayOrder{ID: id}
	out.Currency, _ = body["currency"].(string)
	out.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		out.AmountMinor = int64(v)
	case int64:
		out.AmountMinor = v
	case int:
		out.AmountMinor = int64(v)
	}
	return out, nil
}

// VerifySignature checks HMAC_SHA256(order_id|payment_id) against the key secret.
func (r *Razorpay) VerifySignature(cb Callback) error {
	if cb.OrderID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return ErrSignatureMismatch
	}
	attrs := map[string]interface{}{
		"razorpay_order_id":   cb.OrderID,
		"razorpay_payment_id": cb.PaymentID,
	}
	if !utils.VerifyPaymentSignature(attrs, cb.Signature, r.keySecret) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyWebhook checks the X-Razorpay-Signature header against the webhook secret.
func (r *Razorpay) VerifyWebhook(body []byte, signature string) error {
	if r.webhookSecret == "" {
		return errors.New("webhook secret not configured")
	}
	if signature == "" || !utils.VerifyWebhookSignature(string(body), signature, r.webhookSecret) {
		return ErrSignatureMismatch
	}
	return nil
}
