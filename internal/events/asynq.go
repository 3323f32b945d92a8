package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// QueueEvents is the asynq queue carrying domain events.
const QueueEvents = "events"

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqScheduler enqueues each event as an asynq task keyed by the event id,
// so relaying the same event twice enqueues it once.
type AsynqScheduler struct {
	Client    taskEnqueuer
	MaxRetry  int
	Retention time.Duration
}

// NewAsynqScheduler wraps an asynq client.
func NewAsynqScheduler(client *asynq.Client) *AsynqScheduler {
	return &AsynqScheduler{Client: client, MaxRetry: 10, Retention: 24 * time.Hour}
}

// Schedule implements DeliveryScheduler.
func (s *AsynqScheduler) Schedule(ctx context.Context, ev Event) error {
	if s == nil || s.Client == nil {
		return errors.New("events: asynq client not configured")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	opts := []asynq.Option{
		asynq.Queue(QueueEvents),
		asynq.TaskID(ev.ID.String()),
		asynq.MaxRetry(s.MaxRetry),
	}
	if s.Retention > 0 {
		opts = append(opts, asynq.Retention(s.Retention))
	}
	_, err = s.Client.EnqueueContext(ctx, asynq.NewTask(TaskType(ev.Topic), payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Decode parses the event carried by an asynq task.
func Decode(task *asynq.Task) (Event, error) {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
