package coupon

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrStoreUnavailable indicates the coupon store dependency is not configured.
	ErrStoreUnavailable = errors.New("coupon: store unavailable")
	// ErrDuplicateCode is returned when a tutor reuses an existing code.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Store persists coupons and their usage.
type Store interface {
	GetByCode(ctx context.Context, code string) (Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (Coupon, error)
	ListByTutor(ctx context.Context, tutorID uuid.UUID) ([]Coupon, error)
	Create(ctx context.Context, c Coupon) (Coupon, error)
	Update(ctx context.Context, c Coupon) (Coupon, error)
	CountUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// Usage records one redemption of a coupon against an order.
type Usage struct {
	CouponID uuid.UUID
	OrderID  uuid.UUID
	UserID   uuid.UUID
	Amount   decimal.Decimal
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const couponColumns = `id, code, title, tutor_id, kind, value, max_discount, min_purchase, usage_limit, used_count, per_user_limit, valid_from, valid_to, is_active, created_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c    Coupon
		kind string
	)
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.TutorID, &kind, &c.Value, &c.MaxDiscount, &c.MinPurchase,
		&c.UsageLimit, &c.UsedCount, &c.PerUserLimit, &c.ValidFrom, &c.ValidTo, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	c.Kind = Kind(kind)
	return c, err
}

func (s *pgStore) GetByCode(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.pool == nil {
		return Coupon{}, ErrStoreUnavailable
	}
	return scanCoupon(s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
}

func (s *pgStore) GetByID(ctx context.Context, id uuid.UUID) (Coupon, error) {
	if s == nil || s.pool == nil {
		return Coupon{}, ErrStoreUnavailable
	}
	return scanCoupon(s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
}

func (s *pgStore) ListByTutor(ctx context.Context, tutorID uuid.UUID) ([]Coupon, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons WHERE tutor_id = $1 ORDER BY created_at DESC`, tutorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgStore) Create(ctx context.Context, c Coupon) (Coupon, error) {
	if s == nil || s.pool == nil {
		return Coupon{}, ErrStoreUnavailable
	}
	out, err := scanCoupon(s.pool.QueryRow(ctx, `INSERT INTO coupons
  (code, title, tutor_id, kind, value, max_discount, min_purchase, usage_limit, per_user_limit, valid_from, valid_to, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING `+couponColumns,
		c.Code, c.Title, c.TutorID, string(c.Kind), c.Value, c.MaxDiscount, c.MinPurchase,
		c.UsageLimit, c.PerUserLimit, c.ValidFrom, c.ValidTo, c.IsActive))
	if isUniqueViolation(err) {
		return Coupon{}, ErrDuplicateCode
	}
	return out, err
}

func (s *pgStore) Update(ctx context.Context, c Coupon) (Coupon, error) {
	if s == nil || s.pool == nil {
		return Coupon{}, ErrStoreUnavailable
	}
	return scanCoupon(s.pool.QueryRow(ctx, `UPDATE coupons SET
  title = $2, kind = $3, value = $4, max_discount = $5, min_purchase = $6, usage_limit = $7,
  per_user_limit = $8, valid_from = $9, valid_to = $10, is_active = $11, updated_at = now()
WHERE id = $1
RETURNING `+couponColumns,
		c.ID, c.Title, string(c.Kind), c.Value, c.MaxDiscount, c.MinPurchase, c.UsageLimit,
		c.PerUserLimit, c.ValidFrom, c.ValidTo, c.IsActive))
}

func (s *pgStore) CountUsageByUser(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&n)
	return n, err
}

// SettleTx records coupon usage inside the caller's transaction. A second call
// for the same coupon and order is a no-op, so payment verification can retry.
func SettleTx(ctx context.Context, tx pgx.Tx, u Usage) error {
	tag, err := tx.Exec(ctx, `INSERT INTO coupon_usages (coupon_id, order_id, user_id, amount)
VALUES ($1, $2, $3, $4) ON CONFLICT (coupon_id, order_id) DO NOTHING`, u.CouponID, u.OrderID, u.UserID, u.Amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`, u.CouponID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
