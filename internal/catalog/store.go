package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the catalog store dependency is not configured.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")
	// ErrCourseNotFound is returned when a course id does not exist.
	ErrCourseNotFound = errors.New("course not found")
)

// Store provides read access to courses.
type Store interface {
	GetCourse(ctx context.Context, id uuid.UUID) (Course, error)
	GetCourses(ctx context.Context, ids []uuid.UUID) ([]Course, error)
	ListPublished(ctx context.Context, params ListParams) ([]Course, int64, error)
}

// ListParams filters public course listings.
type ListParams struct {
	Query   string
	TutorID *uuid.UUID
	Limit   int
	Offset  int
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const courseColumns = `c.id, c.title, c.price, c.offer_percentage, c.tutor_id, u.name, c.is_listed, c.is_active, c.is_banned, c.thumbnail, c.updated_at`

const courseFrom = ` FROM courses c JOIN users u ON u.id = c.tutor_id`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Title, &c.Price, &c.OfferPercentage, &c.TutorID, &c.TutorName,
		&c.IsListed, &c.IsActive, &c.IsBanned, &c.Thumbnail, &c.UpdatedAt)
	return c, err
}

func (s *pgStore) GetCourse(ctx context.Context, id uuid.UUID) (Course, error) {
	if s == nil || s.pool == nil {
		return Course{}, ErrStoreUnavailable
	}
	c, err := scanCourse(s.pool.QueryRow(ctx, `SELECT `+courseColumns+courseFrom+` WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, ErrCourseNotFound
	}
	return c, err
}

// GetCourses returns courses in the order of ids; unknown ids are skipped.
func (s *pgStore) GetCourses(ctx context.Context, ids []uuid.UUID) ([]Course, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+courseColumns+courseFrom+` WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]Course, len(ids))
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Course, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *pgStore) ListPublished(ctx context.Context, params ListParams) ([]Course, int64, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	where := ` WHERE c.is_listed AND c.is_active AND NOT c.is_banned
  AND ($1 = '' OR c.title ILIKE '%' || $1 || '%')
  AND ($2::uuid IS NULL OR c.tutor_id = $2)`
	q := strings.TrimSpace(params.Query)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+courseFrom+where, q, params.TutorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+courseColumns+courseFrom+where+` ORDER BY c.created_at DESC LIMIT $3 OFFSET $4`,
		q, params.TutorID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Course, 0, params.Limit)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
