package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/events"
	"github.com/avirag26/scholaro-api/internal/resilience"
)

// Task types and the queue for periodic maintenance.
const (
	TypeRelayOutbox  = "outbox:relay"
	TypeExpireOrders = "orders:expire"

	QueueMaintenance = "maintenance"
)

// Relayer re-publishes undispatched outbox events.
type Relayer interface {
	Relay(ctx context.Context, limit int) (int, error)
}

// OrderExpirer expires pending orders older than maxAge.
type OrderExpirer interface {
	ExpireStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// CartPruner removes a course from a user's cart.
type CartPruner interface {
	Remove(ctx context.Context, userID, courseID uuid.UUID) error
}

// ProfileRefresher reloads a cached profile.
type ProfileRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// Handlers processes worker tasks.
type Handlers struct {
	Relay      Relayer
	Orders     OrderExpirer
	Cart       CartPruner
	Profiles   ProfileRefresher
	RelayBatch int
	PendingTTL time.Duration
	Log        zerolog.Logger
}

// Mux builds the asynq router for every task type the worker handles.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(h.observe)
	mux.HandleFunc(TypeRelayOutbox, h.HandleRelay)
	mux.HandleFunc(TypeExpireOrders, h.HandleExpire)
	mux.HandleFunc(events.TaskType(events.TopicOrderPaid), h.HandleOrderPaid)
	for _, topic := range []string{events.TopicOrderCreated, events.TopicOrderExpired, events.TopicPaymentFailed} {
		mux.HandleFunc(events.TaskType(topic), h.HandleLogged)
	}
	return mux
}

// HandleRelay re-publishes outbox events whose first dispatch failed.
func (h *Handlers) HandleRelay(ctx context.Context, _ *asynq.Task) error {
	if h.Relay == nil {
		return fmt.Errorf("relay not configured: %w", asynq.SkipRetry)
	}
	n, err := h.Relay.Relay(ctx, h.RelayBatch)
	RelayedTotal.Add(float64(n))
	if n > 0 {
		h.Log.Info().Int("count", n).Msg("outbox_relayed")
	}
	return err
}

// HandleExpire marks stale pending orders expired.
func (h *Handlers) HandleExpire(ctx context.Context, _ *asynq.Task) error {
	if h.Orders == nil {
		return fmt.Errorf("orders not configured: %w", asynq.SkipRetry)
	}
	ttl := h.PendingTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	n, err := h.Orders.ExpireStale(ctx, ttl)
	ExpiredTotal.Add(float64(n))
	if n > 0 {
		h.Log.Info().Int("count", n).Msg("orders_expired")
	}
	return err
}

type paidPayload struct {
	UserID    uuid.UUID   `json:"userId"`
	CourseIDs []uuid.UUID `json:"courseIds"`
}

// HandleOrderPaid removes purchased courses from the buyer's cart and
// refreshes their profile. It covers orders settled by webhook after the
// buyer left the checkout.
func (h *Handlers) HandleOrderPaid(ctx context.Context, t *asynq.Task) error {
	ev, err := events.Decode(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	var p paidPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.UserID == uuid.Nil {
		return fmt.Errorf("order.paid %s: bad payload: %w", ev.AggregateID, asynq.SkipRetry)
	}
	var errs []error
	if h.Cart != nil {
		for _, id := range p.CourseIDs {
			if err := h.Cart.Remove(ctx, p.UserID, id); err != nil && !errors.Is(err, cart.ErrItemNotFound) {
				errs = append(errs, fmt.Errorf("remove %s from cart: %w", id, err))
			}
		}
	}
	if h.Profiles != nil {
		if err := h.Profiles.Refresh(ctx, p.UserID); err != nil {
			errs = append(errs, fmt.Errorf("refresh profile: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HandleLogged records events that need no side effects beyond the log.
func (h *Handlers) HandleLogged(_ context.Context, t *asynq.Task) error {
	ev, err := events.Decode(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	h.Log.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		RawJSON("payload", payloadOrNull(ev.Payload)).
		Msg("domain_event")
	return nil
}

func payloadOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

func (h *Handlers) observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		result := "ok"
		if err != nil {
			result = "error"
			if errors.Is(err, asynq.SkipRetry) {
				result = "skipped"
			}
		}
		ProcessedTotal.WithLabelValues(t.Type(), result).Inc()
		evt := h.Log.Debug()
		if err != nil {
			evt = h.Log.Warn().Err(err)
		}
		evt.Str("task_type", t.Type()).Dur("took", time.Since(start)).Msg("task_processed")
		return err
	})
}

// RegisterPeriodic schedules the outbox relay and the order expiry sweep.
func RegisterPeriodic(s *asynq.Scheduler, relayEvery, expireEvery time.Duration) error {
	for _, job := range []struct {
		typ   string
		every time.Duration
	}{
		{TypeRelayOutbox, relayEvery},
		{TypeExpireOrders, expireEvery},
	} {
		if job.every <= 0 {
			continue
		}
		spec := "@every " + job.every.String()
		if _, err := s.Register(spec, asynq.NewTask(job.typ, nil),
			asynq.Queue(QueueMaintenance),
			asynq.MaxRetry(0),
			asynq.Unique(job.every),
		); err != nil {
			return fmt.Errorf("schedule %s: %w", job.typ, err)
		}
	}
	return nil
}

// RetryDelay backs off exponentially from base with 20% jitter, capped at 2^10.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return resilience.Backoff(base, min(n+1, 10), 0.2)
	}
}
