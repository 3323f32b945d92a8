package checkout

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/lock"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/payment"
	"github.com/avirag26/scholaro-api/internal/pricing"
)

var (
	// ErrVendorRequired is returned when several vendor groups exist and none is selected.
	ErrVendorRequired = errors.New("select a tutor before applying a coupon")
	// ErrVendorNotInCheckout is returned for a tutor with no available items.
	ErrVendorNotInCheckout = errors.New("tutor has no courses in this checkout")
	// ErrCouponAlreadyApplied is returned when the vendor already holds a coupon
	// or the code is already used for another vendor.
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied")
	// ErrSessionClosed is returned for any change to a completed session.
	ErrSessionClosed = errors.New("checkout already completed")
	// ErrCallbackMismatch is returned when a payment callback names another gateway order.
	ErrCallbackMismatch = errors.New("payment callback does not match this checkout")
	// ErrAttemptSuperseded is returned to a Pay whose order was minted after a
	// newer attempt took over the session.
	ErrAttemptSuperseded = errors.New("payment attempt superseded by a newer one")
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// staleAfter bounds how long a session may sit in creating_order before a
// new Pay is accepted.
const staleAfter = 2 * time.Minute

// Aggregator loads the priced, vendor-grouped line items.
type Aggregator interface {
	Load(ctx context.Context, userID uuid.UUID, mode cart.Mode, courseID uuid.UUID) (cart.Aggregate, error)
}

// CouponValidator is the pure coupon rule check.
type CouponValidator interface {
	Validate(ctx context.Context, req coupon.ValidateRequest) (coupon.Result, error)
}

// Orders creates, verifies and fails orders on the server.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest) (order.Draft, order.Order, error)
	Verify(ctx context.Context, userID uuid.UUID, cb payment.Callback) (order.Order, error)
	Fail(ctx context.Context, userID, orderID uuid.UUID, f payment.Failure) (order.Order, error)
}

// CartClearer empties a user's cart.
type CartClearer interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

// ProfileRefresher reloads the cached user profile.
type ProfileRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) error
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service runs checkout sessions.
type Service struct {
	Store     Store
	Cart      Aggregator
	Coupons   CouponValidator
	Orders    Orders
	Clearer   CartClearer
	Profiles  ProfileRefresher
	Locker    Locker
	LockTTL   time.Duration
	TaxBps    int
	Redirects Redirects
	Now       func() time.Time
	Log       zerolog.Logger
}

// View is a session rendered with its live cart and totals.
type View struct {
	Session
	Cart        cart.View       `json:"cart"`
	Summary     pricing.Summary `json:"summary"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Cart == nil || s.Orders == nil {
		return errors.New("checkout service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Start opens a session over the cart or a single course.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, mode cart.Mode, courseID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if !mode.Valid() || (mode == cart.ModeDirect && courseID == uuid.Nil) {
		return View{}, ErrInvalidInput
	}
	if mode == cart.ModeCart {
		courseID = uuid.Nil
	}
	agg, err := s.Cart.Load(ctx, userID, mode, courseID)
	if err != nil {
		return View{}, err
	}
	sess := newSession(userID, mode, courseID, s.now())
	if len(agg.Groups) == 1 {
		tutor := agg.Groups[0].TutorID
		sess.SelectedTutor = &tutor
	}
	if err := s.Store.Save(ctx, sess); err != nil {
		return View{}, err
	}
	s.logger(ctx).Info().Str("checkout_session", sess.ID.String()).Str("mode", string(mode)).Msg("checkout_started")
	return s.render(ctx, sess, agg), nil
}

// Get renders a session.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, sess)
}

// SelectVendor picks the vendor group coupons apply to.
func (s *Service) SelectVendor(ctx context.Context, userID, id, tutorID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	var agg cart.Aggregate
	sess, err := s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if err := editable(sess.State); err != nil {
			return err
		}
		var err error
		if agg, err = s.Cart.Load(ctx, userID, sess.Mode, sess.CourseID); err != nil {
			return err
		}
		if _, ok := agg.Group(tutorID); !ok {
			return ErrVendorNotInCheckout
		}
		sess.SelectedTutor = &tutorID
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.render(ctx, sess, agg), nil
}

// ApplyCoupon validates code for one vendor group and records the discount.
// The target is tutorID when given, else the selected vendor, else the only
// vendor. Local rejections happen before the validator is called; a rejected
// code leaves the session unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, userID, id uuid.UUID, code string, tutorID *uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if s.Coupons == nil {
		return View{}, errors.New("coupon validator not configured")
	}
	code = coupon.NormalizeCode(code)
	if code == "" {
		return View{}, coupon.ErrCodeRequired
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "checkout.ApplyCoupon")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", id.String()), attribute.String("coupon.code", code))

	var agg cart.Aggregate
	sess, err := s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if err := editable(sess.State); err != nil {
			return err
		}
		var err error
		if agg, err = s.Cart.Load(ctx, userID, sess.Mode, sess.CourseID); err != nil {
			return err
		}
		target, err := pickVendor(*sess, agg, tutorID)
		if err != nil {
			return err
		}
		if _, taken := sess.AppliedCoupons[target]; taken {
			return ErrCouponAlreadyApplied
		}
		if _, used := sess.hasCode(code); used {
			return ErrCouponAlreadyApplied
		}
		group, ok := agg.Group(target)
		if !ok {
			return ErrVendorNotInCheckout
		}
		res, err := s.Coupons.Validate(ctx, coupon.ValidateRequest{
			Code:        code,
			CourseIDs:   group.CourseIDs(),
			TotalAmount: group.Subtotal,
			TutorID:     target,
			UserID:      userID,
		})
		if err != nil {
			return err
		}
		sess.AppliedCoupons[target] = AppliedCoupon{TutorID: target, Coupon: res.Coupon, Discount: res.Discount, Subtotal: group.Subtotal}
		sess.SelectedTutor = &target
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return View{}, err
	}
	return s.render(ctx, sess, agg), nil
}

func pickVendor(sess Session, agg cart.Aggregate, explicit *uuid.UUID) (uuid.UUID, error) {
	switch {
	case explicit != nil && *explicit != uuid.Nil:
		return *explicit, nil
	case len(agg.Groups) == 1:
		return agg.Groups[0].TutorID, nil
	case sess.SelectedTutor != nil:
		return *sess.SelectedTutor, nil
	case len(agg.Groups) == 0:
		return uuid.Nil, ErrVendorNotInCheckout
	default:
		return uuid.Nil, ErrVendorRequired
	}
}

// RemoveCoupon drops the coupon held for tutorID.
func (s *Service) RemoveCoupon(ctx context.Context, userID, id, tutorID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	sess, err := s.mutate(ctx, userID, id, func(_ context.Context, sess *Session) error {
		if err := editable(sess.State); err != nil {
			return err
		}
		delete(sess.AppliedCoupons, tutorID)
		return nil
	})
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, sess)
}

// Pay mints a gateway order for the current total. A session whose widget is
// already open returns its existing draft.
func (s *Service) Pay(ctx context.Context, userID, id uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "checkout.Pay")
	defer span.End()

	reopen := false
	attempt := uuid.New()
	sess, err := s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if sess.State == StateWidgetOpen && sess.Draft != nil {
			reopen = true
			return nil
		}
		if sess.State == StateCreatingOrder && s.now().Sub(sess.UpdatedAt) > staleAfter {
			sess.Failure = &payment.Failure{Kind: payment.KindOrderCreation, Description: "Order creation did not finish"}
			if err := s.transition(ctx, sess, EventOrderFailed); err != nil {
				return err
			}
		}
		if err := s.transition(ctx, sess, EventPay); err != nil {
			return err
		}
		sess.Attempt = attempt
		return nil
	})
	if err != nil {
		return View{}, err
	}
	if reopen {
		return s.view(ctx, sess)
	}

	minted, createErr := s.createOrder(ctx, sess)
	if createErr != nil {
		span.RecordError(createErr)
		s.logger(ctx).Warn().Err(createErr).Str("checkout_session", id.String()).Msg("order creation failed")
	}
	sess, err = s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if sess.Attempt != attempt || sess.State != StateCreatingOrder {
			return ErrAttemptSuperseded
		}
		if createErr != nil {
			sess.Failure = &payment.Failure{Kind: payment.KindOrderCreation, Description: describe(createErr)}
			return s.transition(ctx, sess, EventOrderFailed)
		}
		sess.AppliedCoupons = minted.coupons
		sess.Draft = &minted.draft
		sess.Charged = &minted.summary
		return s.transition(ctx, sess, EventOrderMinted)
	})
	if errors.Is(err, ErrAttemptSuperseded) && createErr == nil {
		s.abandon(ctx, userID, minted.draft)
	}
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, sess)
}

// mintedOrder is the outcome of one Pay attempt: the widget draft, the
// totals the gateway was asked to charge and the coupons they include.
type mintedOrder struct {
	draft   order.Draft
	summary pricing.Summary
	coupons map[uuid.UUID]AppliedCoupon
}

func (s *Service) createOrder(ctx context.Context, sess Session) (mintedOrder, error) {
	agg, err := s.Cart.Load(ctx, sess.UserID, sess.Mode, sess.CourseID)
	if err != nil {
		return mintedOrder{}, err
	}
	applied := s.reprice(ctx, sess, agg)
	draft, placed, err := s.Orders.Create(ctx, order.CreateRequest{
		UserID:   sess.UserID,
		Mode:     sess.Mode,
		CourseID: sess.CourseID,
		Coupons:  orderCoupons(applied, agg),
	})
	if err != nil {
		return mintedOrder{}, err
	}
	return mintedOrder{draft: draft, summary: placed.Summary, coupons: applied}, nil
}

// abandon fails an order minted by an attempt that lost the session, so the
// pending gateway order is not left for the expiry sweep.
func (s *Service) abandon(ctx context.Context, userID uuid.UUID, draft order.Draft) {
	f := payment.Failure{
		Kind:        payment.KindOrderCreation,
		Description: "Superseded by a newer payment attempt",
		OrderID:     draft.InternalOrderID.String(),
	}
	if _, err := s.Orders.Fail(ctx, userID, draft.InternalOrderID, f); err != nil {
		s.logger(ctx).Warn().Err(err).Str("order_id", draft.InternalOrderID.String()).Msg("fail superseded order")
		return
	}
	s.logger(ctx).Info().Str("order_id", draft.InternalOrderID.String()).Msg("superseded order failed")
}

// PaymentSucceeded handles the widget's success callback: it verifies the
// payment on the server and completes or fails the session.
func (s *Service) PaymentSucceeded(ctx context.Context, userID, id uuid.UUID, cb payment.Callback) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "checkout.PaymentSucceeded")
	defer span.End()

	sess, err := s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if sess.State == StateWidgetOpen && (sess.Draft == nil || sess.Draft.GatewayOrderID != cb.OrderID) {
			return ErrCallbackMismatch
		}
		return s.transition(ctx, sess, EventPaymentOK)
	})
	if err != nil {
		return View{}, err
	}
	internalID := sess.Draft.InternalOrderID

	paid, verifyErr := s.Orders.Verify(ctx, userID, cb)
	if verifyErr != nil {
		span.RecordError(verifyErr)
		s.logger(ctx).Warn().Err(verifyErr).Str("checkout_session", id.String()).Msg("payment verification failed")
	}
	sess, err = s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if verifyErr != nil {
			sess.Failure = &payment.Failure{
				Kind:        payment.KindVerification,
				Description: describe(verifyErr),
				OrderID:     internalID.String(),
				PaymentID:   cb.PaymentID,
			}
			return s.transition(ctx, sess, EventVerifyFailed)
		}
		sess.OrderID = &paid.ID
		return s.transition(ctx, sess, EventVerified)
	})
	if err != nil {
		return View{}, err
	}
	if sess.State == StateCompleted {
		s.afterCompleted(ctx, sess)
	}
	return s.view(ctx, sess)
}

// afterCompleted runs the side effects that only a verified payment may trigger.
func (s *Service) afterCompleted(ctx context.Context, sess Session) {
	log := s.logger(ctx)
	if sess.Mode == cart.ModeCart && s.Clearer != nil {
		if err := s.Clearer.Clear(ctx, sess.UserID); err != nil {
			log.Error().Err(err).Str("user_id", sess.UserID.String()).Msg("clear cart after payment")
		}
	}
	if s.Profiles != nil {
		if err := s.Profiles.Refresh(ctx, sess.UserID); err != nil {
			log.Error().Err(err).Str("user_id", sess.UserID.String()).Msg("refresh profile after payment")
		}
	}
}

// Dismiss records that the widget was closed without paying.
func (s *Service) Dismiss(ctx context.Context, userID, id uuid.UUID) (View, error) {
	return s.failWidget(ctx, userID, id, EventDismissed, func() payment.Failure {
		return payment.Failure{Kind: payment.KindUserCancelled, Description: "Payment cancelled by user"}
	})
}

// PaymentFailed records a widget-reported failure, normalising the gateway error.
func (s *Service) PaymentFailed(ctx context.Context, userID, id uuid.UUID, gwErr payment.GatewayError) (View, error) {
	return s.failWidget(ctx, userID, id, EventPaymentFailed, func() payment.Failure {
		return payment.Normalize(gwErr)
	})
}

func (s *Service) failWidget(ctx context.Context, userID, id uuid.UUID, ev Event, build func() payment.Failure) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	sess, err := s.mutate(ctx, userID, id, func(ctx context.Context, sess *Session) error {
		if _, err := Next(sess.State, ev); err != nil {
			return err
		}
		f := build()
		if sess.Draft != nil {
			f.OrderID = sess.Draft.InternalOrderID.String()
		}
		sess.Failure = &f
		return s.transition(ctx, sess, ev)
	})
	if err != nil {
		return View{}, err
	}
	if sess.Draft != nil {
		if _, err := s.Orders.Fail(ctx, userID, sess.Draft.InternalOrderID, *sess.Failure); err != nil {
			s.logger(ctx).Warn().Err(err).Str("order_id", sess.Draft.InternalOrderID.String()).Msg("record order failure")
		}
	}
	return s.view(ctx, sess)
}

func (s *Service) transition(ctx context.Context, sess *Session, ev Event) error {
	to, err := Next(sess.State, ev)
	if err != nil {
		return err
	}
	from := sess.State
	sess.State = to
	switch to {
	case StateCreatingOrder:
		sess.Failure = nil
		sess.Draft = nil
		sess.Charged = nil
	case StateFailed:
		if sess.Failure == nil {
			sess.Failure = &payment.Failure{Kind: payment.KindPaymentFailed, Description: "Payment failed"}
		}
		obs.IncSessionFailure(string(sess.Failure.Kind))
	}
	evt := s.logger(ctx).Info().
		Str("checkout_session", sess.ID.String()).
		Str("event", string(ev)).
		Str("from_state", string(from)).
		Str("to_state", string(to))
	if sess.Failure != nil && to == StateFailed {
		evt = evt.Str("failure_kind", string(sess.Failure.Kind))
	}
	evt.Msg("checkout_transition")
	return nil
}

func (s *Service) mutate(ctx context.Context, userID, id uuid.UUID, fn func(context.Context, *Session) error) (Session, error) {
	var out Session
	run := func(ctx context.Context) error {
		sess, err := s.load(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, &sess); err != nil {
			return err
		}
		sess.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	}
	if s.Locker == nil {
		return out, run(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return out, s.Locker.WithLock(ctx, lock.Key("checkout", id.String()), ttl, run)
}

func (s *Service) load(ctx context.Context, userID, id uuid.UUID) (Session, error) {
	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != userID {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) view(ctx context.Context, sess Session) (View, error) {
	agg, err := s.Cart.Load(ctx, sess.UserID, sess.Mode, sess.CourseID)
	if err != nil {
		if sess.State != StateCompleted {
			return View{}, err
		}
		agg = cart.Build(sess.Mode, nil)
	}
	return s.render(ctx, sess, agg), nil
}

// render prices the session against agg. Once an order is minted and the
// session is no longer editable, the summary is the one the gateway charges.
func (s *Service) render(ctx context.Context, sess Session, agg cart.Aggregate) View {
	var summary pricing.Summary
	if sess.Charged != nil && !sess.State.Editable() {
		summary = *sess.Charged
	} else {
		sess.AppliedCoupons = s.reprice(ctx, sess, agg)
		summary = pricing.Compose(agg.Subtotal, couponDiscounts(sess.AppliedCoupons, agg), s.TaxBps)
	}
	return View{
		Session:     sess,
		Cart:        cart.NewView(agg),
		Summary:     summary,
		RedirectURL: s.Redirects.For(sess),
	}
}

// reprice checks each applied coupon against its vendor's current subtotal.
// A coupon whose vendor left the checkout, or that no longer validates for the
// new subtotal, is dropped. Every kept discount is capped at its subtotal.
func (s *Service) reprice(ctx context.Context, sess Session, agg cart.Aggregate) map[uuid.UUID]AppliedCoupon {
	out := make(map[uuid.UUID]AppliedCoupon, len(sess.AppliedCoupons))
	for tutor, ac := range sess.AppliedCoupons {
		group, ok := agg.Group(tutor)
		if !ok {
			continue
		}
		if !ac.Subtotal.Equal(group.Subtotal) && s.Coupons != nil {
			res, err := s.Coupons.Validate(ctx, coupon.ValidateRequest{
				Code:        ac.Coupon.Code,
				CourseIDs:   group.CourseIDs(),
				TotalAmount: group.Subtotal,
				TutorID:     tutor,
				UserID:      sess.UserID,
			})
			switch {
			case err == nil:
				ac.Coupon, ac.Discount, ac.Subtotal = res.Coupon, res.Discount, group.Subtotal
			case coupon.IsRuleError(err):
				s.logger(ctx).Info().Err(err).
					Str("checkout_session", sess.ID.String()).
					Str("coupon_code", ac.Coupon.Code).
					Msg("coupon dropped after cart change")
				continue
			default:
				s.logger(ctx).Warn().Err(err).Str("coupon_code", ac.Coupon.Code).Msg("coupon recheck failed")
			}
		}
		ac.Discount.Amount = decimal.Min(ac.Discount.Amount, group.Subtotal)
		out[tutor] = ac
	}
	return out
}

func couponDiscounts(applied map[uuid.UUID]AppliedCoupon, agg cart.Aggregate) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(applied))
	for _, g := range agg.Groups {
		if ac, ok := applied[g.TutorID]; ok {
			out = append(out, ac.Discount.Amount)
		}
	}
	return out
}

func (s *Service) logger(ctx context.Context) *zerolog.Logger {
	l := obs.LoggerFrom(ctx, s.Log)
	return &l
}

func editable(st State) error {
	switch {
	case st.Terminal():
		return ErrSessionClosed
	case !st.Editable():
		return ErrPaymentInProgress
	}
	return nil
}

// describe turns an error into a message safe to show on the failure page.
func describe(err error) string {
	var appErr *common.AppError
	if errors.As(order.HTTPError(err), &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
		return appErr.Message
	}
	if errors.Is(err, payment.ErrGatewayUnavailable) {
		return "Payment gateway is unavailable, please try again"
	}
	return "Something went wrong, please try again"
}
