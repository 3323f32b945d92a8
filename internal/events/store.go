package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the outbox has no database.
var ErrStoreUnavailable = errors.New("events: store unavailable")

// Store persists domain events in the outbox table.
type Store interface {
	Insert(ctx context.Context, ev Event) (Event, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	ListUndispatched(ctx context.Context, limit int) ([]Event, error)
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store backed by pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const insertEventSQL = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING occurred_at`

func (s *pgStore) Insert(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.pool == nil {
		return Event{}, ErrStoreUnavailable
	}
	return insert(ctx, s.pool, ev)
}

// InsertTx writes ev inside tx so it commits atomically with the business change.
func InsertTx(ctx context.Context, tx pgx.Tx, ev Event) (Event, error) {
	return insert(ctx, tx, ev)
}

func insert(ctx context.Context, db execer, ev Event) (Event, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	err := db.QueryRow(ctx, insertEventSQL, ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt).Scan(&ev.OccurredAt)
	return ev, err
}

func (s *pgStore) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE domain_events SET dispatched_at = now() WHERE id = $1 AND dispatched_at IS NULL`, id)
	return err
}

func (s *pgStore) ListUndispatched(ctx context.Context, limit int) ([]Event, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, topic, aggregate_id, payload, occurred_at
FROM domain_events
WHERE dispatched_at IS NULL
ORDER BY occurred_at
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}
