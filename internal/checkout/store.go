package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("checkout session not found")

// Store persists checkout sessions.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	Save(ctx context.Context, s Session) error
}

// RedisStore keeps sessions as JSON with a sliding TTL.
type RedisStore struct {
	R   redis.Cmdable
	TTL time.Duration
}

func sessionKey(id uuid.UUID) string { return "checkout:session:" + id.String() }

// Get loads a session.
func (s RedisStore) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	if s.R == nil {
		return Session{}, errors.New("checkout: redis client not configured")
	}
	raw, err := s.R.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.AppliedCoupons == nil {
		sess.AppliedCoupons = map[uuid.UUID]AppliedCoupon{}
	}
	return sess, nil
}

// Save writes a session and refreshes its TTL.
func (s RedisStore) Save(ctx context.Context, sess Session) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return s.R.Set(ctx, sessionKey(sess.ID), raw, ttl).Err()
}
