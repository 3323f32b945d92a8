package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the user store dependency is not configured.
	ErrStoreUnavailable = errors.New("user: store unavailable")
	// ErrUserNotFound is returned for unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// Profile is the student-facing account summary, including owned courses.
type Profile struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      string      `json:"role"`
	Enrolled  []uuid.UUID `json:"enrolledCourseIds"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Owns reports whether the profile lists courseID as enrolled.
func (p Profile) Owns(courseID uuid.UUID) bool {
	for _, id := range p.Enrolled {
		if id == courseID {
			return true
		}
	}
	return false
}

// Store reads user profiles.
type Store interface {
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

func (s *pgStore) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	if s == nil || s.pool == nil {
		return Profile{}, ErrStoreUnavailable
	}
	var p Profile
	err := s.pool.QueryRow(ctx, `SELECT u.id, u.name, u.email, u.role, u.created_at,
  COALESCE(array_agg(e.course_id ORDER BY e.created_at) FILTER (WHERE e.course_id IS NOT NULL), '{}')
FROM users u LEFT JOIN enrollments e ON e.user_id = u.id
WHERE u.id = $1
GROUP BY u.id`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.CreatedAt, &p.Enrolled)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrUserNotFound
	}
	return p, err
}
