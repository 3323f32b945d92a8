package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Service serves profiles through a Redis read-through cache.
type Service struct {
	Store Store
	R     redis.Cmdable
	TTL   time.Duration
	Log   zerolog.Logger
}

func profileKey(id uuid.UUID) string { return "user:profile:" + id.String() }

// Profile returns the cached profile, loading it on a miss.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (Profile, error) {
	if s == nil || s.Store == nil {
		return Profile{}, errors.New("user service not configured")
	}
	if s.R != nil {
		raw, err := s.R.Get(ctx, profileKey(id)).Bytes()
		switch {
		case err == nil:
			var p Profile
			if jerr := json.Unmarshal(raw, &p); jerr == nil {
				return p, nil
			}
		case !errors.Is(err, redis.Nil):
			s.Log.Warn().Err(err).Str("user_id", id.String()).Msg("profile cache read failed")
		}
	}
	return s.load(ctx, id)
}

// Refresh reloads the profile from the database and replaces the cached copy.
// Checkout calls it after a verified payment so new enrollments show at once.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Store == nil {
		return errors.New("user service not configured")
	}
	_, err := s.load(ctx, id)
	return err
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (Profile, error) {
	p, err := s.Store.GetProfile(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	if p.Enrolled == nil {
		p.Enrolled = []uuid.UUID{}
	}
	if s.R != nil && s.TTL > 0 {
		raw, err := json.Marshal(p)
		if err == nil {
			err = s.R.Set(ctx, profileKey(id), raw, s.TTL).Err()
		}
		if err != nil {
			s.Log.Warn().Err(err).Str("user_id", id.String()).Msg("profile cache write failed")
		}
	}
	return p, nil
}
