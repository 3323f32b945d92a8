package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avirag26/scholaro-api/internal/payment"
)

// ErrWebhookReplay is returned when the same webhook body was already processed.
var ErrWebhookReplay = errors.New("duplicate webhook")

// Webhook settles orders from server-to-server gateway notifications, which
// covers payments whose browser callback never reached us.
type Webhook struct {
	Orders    *Service
	Replay    redis.Cmdable
	ReplayTTL time.Duration
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	ErrorSource      string `json:"error_source"`
	ErrorStep        string `json:"error_step"`
	ErrorReason      string `json:"error_reason"`
}

// Handle verifies and applies one webhook body. It returns the event name.
func (h Webhook) Handle(ctx context.Context, body []byte, signature string) (string, error) {
	s := h.Orders
	if err := s.ready(); err != nil {
		return "", err
	}
	if err := s.Gateway.VerifyWebhook(body, signature); err != nil {
		return "", err
	}
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		sum := sha256.Sum256(body)
		ok, err := h.Replay.SetNX(ctx, "webhook:"+s.Gateway.Name()+":"+hex.EncodeToString(sum[:]), "1", ttl).Result()
		if err != nil {
			return "", fmt.Errorf("replay guard: %w", err)
		}
		if !ok {
			return "", ErrWebhookReplay
		}
	}
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p := env.Payload.Payment.Entity
	if p.OrderID == "" {
		return env.Event, nil
	}
	s.audit(ctx, nil, p.OrderID, p.ID, "webhook:"+env.Event, json.RawMessage(body))

	switch env.Event {
	case "payment.captured", "order.paid":
		return env.Event, s.withOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
			o, err := s.Store.GetByGatewayOrderID(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if o.Status == StatusPaid {
				return nil
			}
			_, err = s.settle(ctx, o, p.ID)
			return err
		})
	case "payment.failed":
		f := payment.Normalize(payment.GatewayError{
			Code:        p.ErrorCode,
			Description: p.ErrorDescription,
			Source:      p.ErrorSource,
			Step:        p.ErrorStep,
			Reason:      p.ErrorReason,
			Metadata:    map[string]any{"order_id": p.OrderID, "payment_id": p.ID},
		})
		return env.Event, s.withOrderLock(ctx, p.OrderID, func(ctx context.Context) error {
			o, err := s.Store.GetByGatewayOrderID(ctx, p.OrderID)
			if err != nil {
				return err
			}
			_, err = s.fail(ctx, o, f)
			return err
		})
	default:
		return env.Event, nil
	}
}
