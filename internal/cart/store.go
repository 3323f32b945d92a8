package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the cart store dependency is not configured.
	ErrStoreUnavailable = errors.New("cart: store unavailable")
	// ErrAlreadyInCart is returned when the course is already in the cart.
	ErrAlreadyInCart = errors.New("course already in cart")
	// ErrAlreadyInWishlist is returned when the course is already wishlisted.
	ErrAlreadyInWishlist = errors.New("course already in wishlist")
	// ErrItemNotFound is returned when removing or moving an absent item.
	ErrItemNotFound = errors.New("item not found")
)

// Entry is a persisted cart or wishlist row.
type Entry struct {
	ID       uuid.UUID
	CourseID uuid.UUID
	AddedAt  time.Time
}

// Store persists carts, wishlists and the enrollment lookups they need.
type Store interface {
	ListCart(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	AddCart(ctx context.Context, userID, courseID uuid.UUID) (Entry, error)
	RemoveCart(ctx context.Context, userID, courseID uuid.UUID) error
	ClearCart(ctx context.Context, userID uuid.UUID) error
	ListWishlist(ctx context.Context, userID uuid.UUID) ([]Entry, error)
	AddWishlist(ctx context.Context, userID, courseID uuid.UUID) (Entry, error)
	RemoveWishlist(ctx context.Context, userID, courseID uuid.UUID) error
	MoveToWishlist(ctx context.Context, userID, courseID uuid.UUID) error
	MoveToCart(ctx context.Context, userID, courseID uuid.UUID) error
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func listEntries(ctx context.Context, q querier, table string, userID uuid.UUID) ([]Entry, error) {
	rows, err := q.Query(ctx, `SELECT id, course_id, created_at FROM `+table+` WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CourseID, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func addEntry(ctx context.Context, q querier, table string, userID, courseID uuid.UUID, dup error) (Entry, error) {
	e := Entry{CourseID: courseID}
	err := q.QueryRow(ctx, `INSERT INTO `+table+` (user_id, course_id) VALUES ($1, $2) RETURNING id, created_at`,
		userID, courseID).Scan(&e.ID, &e.AddedAt)
	if isUniqueViolation(err) {
		return Entry{}, dup
	}
	return e, err
}

func removeEntry(ctx context.Context, q querier, table string, userID, courseID uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *pgStore) ListCart(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	return listEntries(ctx, s.pool, "cart_items", userID)
}

func (s *pgStore) AddCart(ctx context.Context, userID, courseID uuid.UUID) (Entry, error) {
	if s == nil || s.pool == nil {
		return Entry{}, ErrStoreUnavailable
	}
	return addEntry(ctx, s.pool, "cart_items", userID, courseID, ErrAlreadyInCart)
}

func (s *pgStore) RemoveCart(ctx context.Context, userID, courseID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return removeEntry(ctx, s.pool, "cart_items", userID, courseID)
}

func (s *pgStore) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (s *pgStore) ListWishlist(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	return listEntries(ctx, s.pool, "wishlist_items", userID)
}

func (s *pgStore) AddWishlist(ctx context.Context, userID, courseID uuid.UUID) (Entry, error) {
	if s == nil || s.pool == nil {
		return Entry{}, ErrStoreUnavailable
	}
	return addEntry(ctx, s.pool, "wishlist_items", userID, courseID, ErrAlreadyInWishlist)
}

func (s *pgStore) RemoveWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return removeEntry(ctx, s.pool, "wishlist_items", userID, courseID)
}

func (s *pgStore) MoveToWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	return s.move(ctx, "cart_items", "wishlist_items", userID, courseID)
}

func (s *pgStore) MoveToCart(ctx context.Context, userID, courseID uuid.UUID) error {
	return s.move(ctx, "wishlist_items", "cart_items", userID, courseID)
}

// move deletes from one list and inserts into the other in a single
// transaction. A course already present in the destination is not an error.
func (s *pgStore) move(ctx context.Context, from, to string, userID, courseID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := removeEntry(ctx, tx, from, userID, courseID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO `+to+` (user_id, course_id) VALUES ($1, $2) ON CONFLICT (user_id, course_id) DO NOTHING`,
			userID, courseID)
		return err
	})
}

func (s *pgStore) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrStoreUnavailable
	}
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID).Scan(&ok)
	return ok, err
}
