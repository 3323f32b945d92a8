package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a persisted domain event.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Topic        string          `json:"topic"`
	AggregateID  uuid.UUID       `json:"aggregateId"`
	Payload      json.RawMessage `json:"payload"`
	OccurredAt   time.Time       `json:"occurredAt"`
	DispatchedAt *time.Time      `json:"dispatchedAt,omitempty"`
}

// DeliveryScheduler hands persisted events to background processing.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, event Event) error
}

// Bus persists domain events and hands them to the scheduler.
type Bus struct {
	Store     Store
	Scheduler DeliveryScheduler
	Log       zerolog.Logger
}

// New builds an unsaved event, validating topic and encoding payload.
func New(topic string, aggregateID uuid.UUID, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	return Event{ID: uuid.New(), Topic: topic, AggregateID: aggregateID, Payload: encoded, OccurredAt: time.Now().UTC()}, nil
}

// Emit records the event and schedules it. A scheduling failure is returned
// but the event stays in the outbox for the relay to pick up.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	ev, err := New(topic, aggregateID, payload)
	if err != nil {
		return Event{}, err
	}
	ev, err = b.Store.Insert(ctx, ev)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, b.Dispatch(ctx, ev)
}

// Dispatch schedules an event that is already persisted, typically one
// written inside a business transaction, and marks it dispatched.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	if b == nil || b.Scheduler == nil {
		return nil
	}
	if err := b.Scheduler.Schedule(ctx, ev); err != nil {
		b.Log.Warn().Err(err).Str("topic", ev.Topic).Str("event_id", ev.ID.String()).Msg("event_schedule_failed")
		return fmt.Errorf("events: schedule: %w", err)
	}
	if b.Store != nil {
		if err := b.Store.MarkDispatched(ctx, ev.ID); err != nil {
			return fmt.Errorf("events: mark dispatched: %w", err)
		}
	}
	return nil
}

// Relay schedules up to limit undispatched events, oldest first, and
// returns how many were handed off.
func (b *Bus) Relay(ctx context.Context, limit int) (int, error) {
	if b == nil || b.Store == nil {
		return 0, errors.New("events: store not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	pending, err := b.Store.ListUndispatched(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("events: list undispatched: %w", err)
	}
	var joined error
	sent := 0
	for _, ev := range pending {
		if err := b.Dispatch(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		sent++
	}
	return sent, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		return validJSON([]byte(strings.TrimSpace(v)))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
