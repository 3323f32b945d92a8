package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/events"
	"github.com/avirag26/scholaro-api/internal/lock"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/payment"
	"github.com/avirag26/scholaro-api/internal/pricing"
)

var (
	// ErrNothingToBuy is returned when no available item remains to purchase.
	ErrNothingToBuy = errors.New("no purchasable courses")
	// ErrNothingToCharge is returned when coupons bring the total to zero.
	ErrNothingToCharge = errors.New("order total is zero")
	// ErrCouponVendorMissing is returned when a coupon targets a tutor absent from the order.
	ErrCouponVendorMissing = errors.New("coupon targets a tutor with no items in this order")
	// ErrDuplicateCoupon is returned when a code or tutor appears twice.
	ErrDuplicateCoupon = errors.New("coupon applied more than once")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// Aggregator loads the priced, vendor-grouped line items.
type Aggregator interface {
	Load(ctx context.Context, userID uuid.UUID, mode cart.Mode, courseID uuid.UUID) (cart.Aggregate, error)
}

// CouponValidator is the pure coupon rule check.
type CouponValidator interface {
	Validate(ctx context.Context, req coupon.ValidateRequest) (coupon.Result, error)
}

// Enrollments reports existing course access.
type Enrollments interface {
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service creates, verifies and fails orders.
type Service struct {
	Store       Store
	Cart        Aggregator
	Coupons     CouponValidator
	Enrollments Enrollments
	Gateway     payment.Gateway
	Locker      Locker
	Bus         *events.Bus
	TaxBps      int
	Currency    string
	LockTTL     time.Duration
	Log         zerolog.Logger
}

// CreateRequest asks for a new order over the cart or a single course.
type CreateRequest struct {
	UserID   uuid.UUID
	Mode     cart.Mode
	CourseID uuid.UUID
	Coupons  []AppliedCoupon
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Cart == nil || s.Gateway == nil {
		return errors.New("order service not configured")
	}
	return nil
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return "INR"
}

// Quote reprices req without side effects: every coupon is revalidated
// against the current catalog and the totals are composed.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (cart.Aggregate, []CouponLine, pricing.Summary, error) {
	if err := s.ready(); err != nil {
		return cart.Aggregate{}, nil, pricing.Summary{}, err
	}
	if !req.Mode.Valid() || req.UserID == uuid.Nil {
		return cart.Aggregate{}, nil, pricing.Summary{}, ErrInvalidInput
	}
	agg, err := s.Cart.Load(ctx, req.UserID, req.Mode, req.CourseID)
	if err != nil {
		return cart.Aggregate{}, nil, pricing.Summary{}, err
	}
	if agg.Empty() {
		return agg, nil, pricing.Summary{}, ErrNothingToBuy
	}
	lines, err := s.revalidate(ctx, req, agg)
	if err != nil {
		return agg, nil, pricing.Summary{}, err
	}
	discounts := make([]decimal.Decimal, 0, len(lines))
	for _, l := range lines {
		discounts = append(discounts, l.Discount)
	}
	return agg, lines, pricing.Compose(agg.Subtotal, discounts, s.TaxBps), nil
}

func (s *Service) revalidate(ctx context.Context, req CreateRequest, agg cart.Aggregate) ([]CouponLine, error) {
	if len(req.Coupons) == 0 {
		return nil, nil
	}
	if s.Coupons == nil {
		return nil, errors.New("coupon validator not configured")
	}
	seenTutor := make(map[uuid.UUID]bool, len(req.Coupons))
	seenCode := make(map[string]bool, len(req.Coupons))
	lines := make([]CouponLine, 0, len(req.Coupons))
	for _, ac := range req.Coupons {
		code := coupon.NormalizeCode(ac.Code)
		if seenTutor[ac.TutorID] || seenCode[code] {
			return nil, ErrDuplicateCoupon
		}
		seenTutor[ac.TutorID], seenCode[code] = true, true
		group, ok := agg.Group(ac.TutorID)
		if !ok {
			return nil, ErrCouponVendorMissing
		}
		res, err := s.Coupons.Validate(ctx, coupon.ValidateRequest{
			Code:        code,
			CourseIDs:   group.CourseIDs(),
			TotalAmount: group.Subtotal,
			TutorID:     ac.TutorID,
			UserID:      req.UserID,
		})
		if err != nil {
			return nil, fmt.Errorf("coupon %s: %w", code, err)
		}
		lines = append(lines, CouponLine{CouponID: res.Coupon.ID, Code: res.Coupon.Code, TutorID: ac.TutorID, Discount: res.Discount.Amount})
	}
	return lines, nil
}

// Create reprices the request, mints a gateway order for the exact minor
// amount and persists a pending order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (draft Draft, out Order, err error) {
	if err := s.ready(); err != nil {
		return Draft{}, Order{}, err
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "order.Create")
	defer span.End()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
		}
		obs.IncOrderCreate(string(req.Mode), result)
	}()
	span.SetAttributes(attribute.String("order.mode", string(req.Mode)), attribute.Int("order.coupons", len(req.Coupons)))

	agg, lines, summary, err := s.Quote(ctx, req)
	if err != nil {
		return Draft{}, Order{}, err
	}
	if err := s.checkEnrollments(ctx, req.UserID, agg); err != nil {
		return Draft{}, Order{}, err
	}
	if summary.AmountMinor <= 0 {
		return Draft{}, Order{}, ErrNothingToCharge
	}

	id := uuid.New()
	currency := s.currency()
	gw, err := s.Gateway.CreateOrder(ctx, payment.OrderRequest{
		AmountMinor: summary.AmountMinor,
		Currency:    currency,
		Receipt:     id.String(),
		Notes:       map[string]string{"user_id": req.UserID.String(), "mode": string(req.Mode)},
	})
	if err != nil {
		return Draft{}, Order{}, fmt.Errorf("create gateway order: %w", err)
	}
	if gw.AmountMinor != 0 && gw.AmountMinor != summary.AmountMinor {
		return Draft{}, Order{}, fmt.Errorf("%w: gateway amount %d != %d", payment.ErrGatewayUnavailable, gw.AmountMinor, summary.AmountMinor)
	}
	span.SetAttributes(attribute.String("order.id", id.String()), attribute.Int64("order.amount_minor", summary.AmountMinor))

	o := Order{
		ID:             id,
		UserID:         req.UserID,
		Mode:           req.Mode,
		Status:         StatusPending,
		Currency:       currency,
		Summary:        summary,
		Gateway:        s.Gateway.Name(),
		GatewayOrderID: gw.ID,
		Coupons:        lines,
	}
	for _, it := range agg.Items() {
		o.Items = append(o.Items, Item{CourseID: it.Course.ID, TutorID: it.Course.TutorID, Title: it.Course.Title, Price: it.Price()})
	}
	created, err := events.New(events.TopicOrderCreated, id, map[string]any{
		"userId": req.UserID, "amountMinor": summary.AmountMinor, "currency": currency, "gatewayOrderId": gw.ID,
	})
	if err != nil {
		return Draft{}, Order{}, err
	}
	out, err = s.Store.Create(ctx, o, created)
	if err != nil {
		return Draft{}, Order{}, fmt.Errorf("persist order: %w", err)
	}
	s.dispatch(ctx, created)
	obs.ObserveOrderAmount(currency, summary.AmountMinor)
	s.Log.Info().Str("order_id", id.String()).Str("gateway_order_id", gw.ID).Int64("amount_minor", summary.AmountMinor).Msg("order_created")

	return Draft{
		GatewayOrderID:  gw.ID,
		Amount:          summary.AmountMinor,
		Currency:        currency,
		InternalOrderID: id,
		Key:             s.Gateway.KeyID(),
	}, out, nil
}

func (s *Service) checkEnrollments(ctx context.Context, userID uuid.UUID, agg cart.Aggregate) error {
	if s.Enrollments == nil {
		return nil
	}
	for _, it := range agg.Items() {
		enrolled, err := s.Enrollments.IsEnrolled(ctx, userID, it.Course.ID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if enrolled {
			return fmt.Errorf("%s: %w", it.Course.Title, cart.ErrAlreadyEnrolled)
		}
	}
	return nil
}

// Verify checks the gateway signature and settles the order. Verifying an
// already paid order succeeds without repeating any side effect.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, cb payment.Callback) (out Order, err error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	ctx, span := otel.Tracer("order.Service").Start(ctx, "order.Verify")
	defer span.End()
	result := "error"
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		obs.IncPaymentVerify(result)
	}()
	span.SetAttributes(attribute.String("payment.gateway_order_id", cb.OrderID))

	err = s.withOrderLock(ctx, cb.OrderID, func(ctx context.Context) error {
		o, err := s.Store.GetByGatewayOrderID(ctx, cb.OrderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		if o.Status == StatusPaid {
			result = "replay"
			out = o
			return nil
		}
		if err := s.Gateway.VerifySignature(cb); err != nil {
			result = "bad_signature"
			s.audit(ctx, &o.ID, cb.OrderID, cb.PaymentID, "signature_mismatch", cb)
			return err
		}
		out, err = s.settle(ctx, o, cb.PaymentID)
		if err == nil {
			result = "success"
		}
		return err
	})
	return out, err
}

func (s *Service) settle(ctx context.Context, o Order, paymentID string) (Order, error) {
	paid, err := events.New(events.TopicOrderPaid, o.ID, map[string]any{
		"userId": o.UserID, "paymentId": paymentID, "courseIds": o.CourseIDs(), "amountMinor": o.Summary.AmountMinor,
	})
	if err != nil {
		return Order{}, err
	}
	out, err := s.Store.MarkPaid(ctx, o.ID, paymentID, paid)
	if err != nil {
		return Order{}, fmt.Errorf("settle order: %w", err)
	}
	s.audit(ctx, &o.ID, o.GatewayOrderID, paymentID, "verified", nil)
	s.dispatch(ctx, paid)
	s.Log.Info().Str("order_id", o.ID.String()).Str("payment_id", paymentID).Msg("order_paid")
	return out, nil
}

// Fail records a gateway-reported failure on a pending order. Orders that
// are no longer pending are returned unchanged.
func (s *Service) Fail(ctx context.Context, userID, orderID uuid.UUID, f payment.Failure) (Order, error) {
	if err := s.ready(); err != nil {
		return Order{}, err
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return s.fail(ctx, o, f)
}

func (s *Service) fail(ctx context.Context, o Order, f payment.Failure) (Order, error) {
	if o.Status != StatusPending {
		return o, nil
	}
	if !payment.KnownKind(f.Kind) {
		f.Kind = payment.KindPaymentFailed
	}
	ev, err := events.New(events.TopicPaymentFailed, o.ID, map[string]any{
		"userId": o.UserID, "kind": f.Kind, "description": f.Description, "paymentId": f.PaymentID,
	})
	if err != nil {
		return Order{}, err
	}
	out, err := s.Store.MarkFailed(ctx, o.ID, f.Code(), f.Description, f.PaymentID, ev)
	if err != nil {
		return Order{}, fmt.Errorf("mark failed: %w", err)
	}
	s.audit(ctx, &o.ID, o.GatewayOrderID, f.PaymentID, "failed", f)
	if out.Status == StatusFailed {
		s.dispatch(ctx, ev)
	}
	return out, nil
}

// Get returns one of the user's orders.
func (s *Service) Get(ctx context.Context, userID, orderID uuid.UUID) (Order, error) {
	if s == nil || s.Store == nil {
		return Order{}, errors.New("order service not configured")
	}
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

// List pages through the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, int64, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("order service not configured")
	}
	return s.Store.ListByUser(ctx, userID, limit, offset)
}

// ExpireStale marks pending orders older than maxAge as expired.
func (s *Service) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if s == nil || s.Store == nil {
		return 0, errors.New("order service not configured")
	}
	ids, err := s.Store.ExpirePending(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if s.Bus != nil {
			if _, err := s.Bus.Emit(ctx, events.TopicOrderExpired, id, nil); err != nil {
				s.Log.Warn().Err(err).Str("order_id", id.String()).Msg("emit order expired")
			}
		}
	}
	return len(ids), nil
}

func (s *Service) withOrderLock(ctx context.Context, gatewayOrderID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return s.Locker.WithLock(ctx, lock.Key("order", gatewayOrderID), ttl, fn)
}

func (s *Service) dispatch(ctx context.Context, ev events.Event) {
	if s.Bus == nil {
		return
	}
	if err := s.Bus.Dispatch(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("topic", ev.Topic).Msg("event left for relay")
	}
}

func (s *Service) audit(ctx context.Context, orderID *uuid.UUID, gatewayOrderID, paymentID, kind string, payload any) {
	var raw []byte
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	err := s.Store.RecordPaymentEvent(ctx, PaymentEvent{
		OrderID: orderID, GatewayOrderID: gatewayOrderID, PaymentID: paymentID, Kind: kind, Payload: raw,
	})
	if err != nil {
		s.Log.Warn().Err(err).Str("kind", kind).Msg("record payment event")
	}
}
