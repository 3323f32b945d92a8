package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps public course reads in Redis. A nil Cache, or one without a
// client, misses on every read and drops every write.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func courseKey(id uuid.UUID) string { return fmt.Sprintf("catalog:course:%s", id) }

func (c *Cache) off() bool { return c == nil || c.rdb == nil }

// Get reports a cached course, with ok false on a miss.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (course Course, ok bool, err error) {
	if c.off() {
		return Course{}, false, nil
	}
	raw, err := c.rdb.Get(ctx, courseKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return Course{}, false, nil
	case err != nil:
		return Course{}, false, err
	}
	if err := json.Unmarshal(raw, &course); err != nil {
		return Course{}, false, fmt.Errorf("decode cached course: %w", err)
	}
	return course, true, nil
}

// Put stores the course until the TTL lapses. Zero TTL disables caching.
func (c *Cache) Put(ctx context.Context, course Course) error {
	if c.off() || c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(course)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, courseKey(course.ID), raw, c.ttl).Err()
}
