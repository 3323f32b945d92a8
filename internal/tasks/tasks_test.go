package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/events"
)

type fakeRelay struct{ n int }

func (f *fakeRelay) Relay(context.Context, int) (int, error) { return f.n, nil }

type fakeOrders struct{ maxAge time.Duration }

func (f *fakeOrders) ExpireStale(_ context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 2, nil
}

type fakeCart struct{ removed []uuid.UUID }

func (f *fakeCart) Remove(_ context.Context, _ uuid.UUID, courseID uuid.UUID) error {
	f.removed = append(f.removed, courseID)
	if len(f.removed) > 1 {
		return cart.ErrItemNotFound
	}
	return nil
}

type fakeProfiles struct{ err error }

func (f *fakeProfiles) Refresh(context.Context, uuid.UUID) error { return f.err }

func eventTask(t *testing.T, topic string, payload any) *asynq.Task {
	t.Helper()
	ev, err := events.New(topic, uuid.New(), payload)
	require.NoError(t, err)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	return asynq.NewTask(events.TaskType(topic), raw)
}

func TestOrderPaidPrunesCart(t *testing.T) {
	carts := &fakeCart{}
	h := &Handlers{Cart: carts, Profiles: &fakeProfiles{}}
	c1, c2 := uuid.New(), uuid.New()

	task := eventTask(t, events.TopicOrderPaid, map[string]any{"userId": uuid.New(), "courseIds": []uuid.UUID{c1, c2}})
	require.NoError(t, h.Mux().ProcessTask(context.Background(), task))
	require.Equal(t, []uuid.UUID{c1, c2}, carts.removed)
}

func TestOrderPaidReportsRefreshFailure(t *testing.T) {
	h := &Handlers{Profiles: &fakeProfiles{err: errors.New("redis down")}}
	task := eventTask(t, events.TopicOrderPaid, map[string]any{"userId": uuid.New()})
	err := h.HandleOrderPaid(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestOrderPaidBadPayloadSkipsRetry(t *testing.T) {
	h := &Handlers{}
	err := h.HandleOrderPaid(context.Background(), asynq.NewTask(events.TaskType(events.TopicOrderPaid), []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleOrderPaid(context.Background(), eventTask(t, events.TopicOrderPaid, map[string]any{}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMaintenanceTasks(t *testing.T) {
	orders := &fakeOrders{}
	h := &Handlers{Relay: &fakeRelay{n: 3}, Orders: orders, PendingTTL: time.Hour}
	mux := h.Mux()

	before := testutil.ToFloat64(RelayedTotal)
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeRelayOutbox, nil)))
	require.Equal(t, before+3, testutil.ToFloat64(RelayedTotal))

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeExpireOrders, nil)))
	require.Equal(t, time.Hour, orders.maxAge)
	require.Equal(t, float64(1), testutil.ToFloat64(ProcessedTotal.WithLabelValues(TypeExpireOrders, "ok")))
}

func TestUnconfiguredMaintenanceSkipsRetry(t *testing.T) {
	h := &Handlers{}
	require.ErrorIs(t, h.HandleRelay(context.Background(), asynq.NewTask(TypeRelayOutbox, nil)), asynq.SkipRetry)
	require.ErrorIs(t, h.HandleExpire(context.Background(), asynq.NewTask(TypeExpireOrders, nil)), asynq.SkipRetry)
}

func TestLoggedEvents(t *testing.T) {
	h := &Handlers{}
	for _, topic := range []string{events.TopicOrderCreated, events.TopicOrderExpired, events.TopicPaymentFailed} {
		require.NoError(t, h.Mux().ProcessTask(context.Background(), eventTask(t, topic, nil)))
	}
}

func TestRetryDelay(t *testing.T) {
	delay := RetryDelay(time.Second)
	for n := 0; n < 20; n++ {
		d := delay(n, nil, nil)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, time.Duration(float64(512*time.Second)*1.2))
	}
}
