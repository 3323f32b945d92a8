package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/events"
)

var (
	// ErrStoreUnavailable indicates the order store has no database.
	ErrStoreUnavailable = errors.New("order: store unavailable")
	// ErrOrderNotFound is returned when no order matches.
	ErrOrderNotFound = errors.New("order not found")
)

// Store persists orders and settles them.
type Store interface {
	Create(ctx context.Context, o Order, created events.Event) (Order, error)
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, int64, error)
	// MarkPaid settles an unpaid order: it records the payment, grants
	// enrollments, records coupon usage and writes paid to the outbox. A paid
	// order is returned unchanged.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paid events.Event) (Order, error)
	MarkFailed(ctx context.Context, id uuid.UUID, code, description string, paymentID string, failed events.Event) (Order, error)
	ExpirePending(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	RecordPaymentEvent(ctx context.Context, e PaymentEvent) error
}

// PaymentEvent is an audit row for anything the gateway told us.
type PaymentEvent struct {
	OrderID        *uuid.UUID
	GatewayOrderID string
	PaymentID      string
	Kind           string
	Payload        []byte
}

// NewStore builds a Store backed by pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const orderColumns = `id, user_id, mode, status, currency, subtotal, coupon_discount, subtotal_after_coupons, tax, tax_bps,
  total, amount_minor, gateway, gateway_order_id, payment_id, failure_code, failure_description, created_at, paid_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o    Order
		mode string
		st   string
	)
	err := row.Scan(&o.ID, &o.UserID, &mode, &st, &o.Currency, &o.Summary.Subtotal, &o.Summary.CouponDiscount,
		&o.Summary.SubtotalAfterCoupons, &o.Summary.Tax, &o.Summary.TaxBps, &o.Summary.Total, &o.Summary.AmountMinor,
		&o.Gateway, &o.GatewayOrderID, &o.PaymentID, &o.FailureCode, &o.FailureDescription, &o.CreatedAt, &o.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Mode = cart.Mode(mode)
	o.Status = Status(st)
	o.Summary.Final = o.Summary.SubtotalAfterCoupons.Add(o.Summary.Tax)
	return o, nil
}

func (s *pgStore) ready() error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return nil
}

func (s *pgStore) Create(ctx context.Context, o Order, created events.Event) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		sum := o.Summary
		row := tx.QueryRow(ctx, `INSERT INTO orders
  (id, user_id, mode, status, currency, subtotal, coupon_discount, subtotal_after_coupons, tax, tax_bps, total, amount_minor, gateway, gateway_order_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+orderColumns,
			o.ID, o.UserID, string(o.Mode), string(StatusPending), o.Currency, sum.Subtotal, sum.CouponDiscount,
			sum.SubtotalAfterCoupons, sum.Tax, sum.TaxBps, sum.Total, sum.AmountMinor, o.Gateway, o.GatewayOrderID)
		stored, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, course_id, tutor_id, title, price) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, it.CourseID, it.TutorID, it.Title, it.Price)
		}
		for _, c := range o.Coupons {
			batch.Queue(`INSERT INTO order_coupons (order_id, coupon_id, code, tutor_id, discount) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, c.CouponID, c.Code, c.TutorID, c.Discount)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order lines: %w", err)
		}
		if _, err := events.InsertTx(ctx, tx, created); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		stored.Items = o.Items
		stored.Coupons = o.Coupons
		o = stored
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	return s.withLines(ctx, s.pool, o)
}

func (s *pgStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_order_id = $1`, gatewayOrderID))
	if err != nil {
		return Order{}, err
	}
	return s.withLines(ctx, s.pool, o)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *pgStore) withLines(ctx context.Context, q querier, o Order) (Order, error) {
	rows, err := q.Query(ctx, `SELECT course_id, tutor_id, title, price FROM order_items WHERE order_id = $1 ORDER BY title`, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.CourseID, &it.TutorID, &it.Title, &it.Price)
		return it, err
	})
	if err != nil {
		return Order{}, err
	}
	rows, err = q.Query(ctx, `SELECT coupon_id, code, tutor_id, discount FROM order_coupons WHERE order_id = $1`, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Coupons, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CouponLine, error) {
		var c CouponLine
		err := row.Scan(&c.CouponID, &c.Code, &c.TutorID, &c.Discount)
		return c, err
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *pgStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	if err := s.ready(); err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *pgStore) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, paid events.Event) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	var out Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if o, err = s.withLines(ctx, tx, o); err != nil {
			return err
		}
		if o.Status == StatusPaid {
			out = o
			return nil
		}
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, payment_id = $3, paid_at = $4,
  failure_code = NULL, failure_description = NULL, updated_at = now() WHERE id = $1`,
			id, string(StatusPaid), paymentID, now); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		for _, it := range o.Items {
			if _, err := tx.Exec(ctx, `INSERT INTO enrollments (user_id, course_id, order_id) VALUES ($1, $2, $3)
ON CONFLICT (user_id, course_id) DO NOTHING`, o.UserID, it.CourseID, o.ID); err != nil {
				return fmt.Errorf("grant enrollment: %w", err)
			}
		}
		for _, c := range o.Coupons {
			if err := coupon.SettleTx(ctx, tx, coupon.Usage{CouponID: c.CouponID, OrderID: o.ID, UserID: o.UserID, Amount: c.Discount}); err != nil {
				return fmt.Errorf("settle coupon %s: %w", c.Code, err)
			}
		}
		if _, err := events.InsertTx(ctx, tx, paid); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		o.Status = StatusPaid
		o.PaymentID = &paymentID
		o.PaidAt = &now
		o.FailureCode, o.FailureDescription = nil, nil
		out = o
		return nil
	})
	return out, err
}

func (s *pgStore) MarkFailed(ctx context.Context, id uuid.UUID, code, description, paymentID string, failed events.Event) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	var out Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `UPDATE orders SET status = $2, failure_code = $3, failure_description = $4,
  payment_id = COALESCE(NULLIF($5, ''), payment_id), updated_at = now()
WHERE id = $1 AND status = $6
RETURNING `+orderColumns, id, string(StatusFailed), code, description, paymentID, string(StatusPending)))
		if errors.Is(err, ErrOrderNotFound) {
			// not pending any more; report the current state unchanged
			o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
			if err != nil {
				return err
			}
			out = o
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := events.InsertTx(ctx, tx, failed); err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return s.withLines(ctx, s.pool, out)
}

func (s *pgStore) ExpirePending(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `UPDATE orders SET status = $1, updated_at = now()
WHERE status = $2 AND created_at < $3 RETURNING id`, string(StatusExpired), string(StatusPending), before)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *pgStore) RecordPaymentEvent(ctx context.Context, e PaymentEvent) error {
	if err := s.ready(); err != nil {
		return err
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO payment_events (order_id, gateway_order_id, payment_id, kind, payload)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)`, e.OrderID, e.GatewayOrderID, e.PaymentID, e.Kind, payload)
	return err
}
