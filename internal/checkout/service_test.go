package checkout

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/lock"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/payment"
	"github.com/avirag26/scholaro-api/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeCart struct {
	mu      sync.Mutex
	agg     cart.Aggregate
	cleared []uuid.UUID
}

func (f *fakeCart) Load(context.Context, uuid.UUID, cart.Mode, uuid.UUID) (cart.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agg, nil
}

func (f *fakeCart) Clear(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	f.agg = cart.Build(cart.ModeCart, nil)
	return nil
}

type fakeCoupons struct {
	discounts map[string]decimal.Decimal
	calls     []coupon.ValidateRequest
}

func (f *fakeCoupons) Validate(_ context.Context, req coupon.ValidateRequest) (coupon.Result, error) {
	f.calls = append(f.calls, req)
	return f.result(req)
}

// result applies the fixed discount for req.Code, clamped to the amount.
func (f *fakeCoupons) result(req coupon.ValidateRequest) (coupon.Result, error) {
	d, ok := f.discounts[req.Code]
	if !ok {
		return coupon.Result{}, coupon.ErrCouponNotFound
	}
	return coupon.Result{
		Coupon:   coupon.Summary{ID: uuid.NewSHA1(uuid.Nil, []byte(req.Code)), Code: req.Code},
		Discount: coupon.DiscountAmount{Amount: decimal.Min(d, req.TotalAmount)},
	}, nil
}

type fakeOrders struct {
	mu        sync.Mutex
	internal  uuid.UUID
	createErr error
	verifyErr error
	onCreate  func()
	quote     func(order.CreateRequest) pricing.Summary
	created   []order.CreateRequest
	verified  []payment.Callback
	failed    []payment.Failure
}

func (f *fakeOrders) Create(_ context.Context, req order.CreateRequest) (order.Draft, order.Order, error) {
	if f.onCreate != nil {
		f.onCreate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return order.Draft{}, order.Order{}, f.createErr
	}
	var summary pricing.Summary
	if f.quote != nil {
		summary = f.quote(req)
	}
	gw := "order_gw" + strconv.Itoa(len(f.created))
	return order.Draft{GatewayOrderID: gw, Amount: summary.AmountMinor, Currency: "INR", InternalOrderID: f.internal, Key: "rzp_test_key"},
		order.Order{ID: f.internal, Status: order.StatusPending, Summary: summary}, nil
}

func (f *fakeOrders) Verify(_ context.Context, _ uuid.UUID, cb payment.Callback) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, cb)
	if f.verifyErr != nil {
		return order.Order{}, f.verifyErr
	}
	return order.Order{ID: f.internal, Status: order.StatusPaid}, nil
}

func (f *fakeOrders) Fail(_ context.Context, _, _ uuid.UUID, fl payment.Failure) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, fl)
	return order.Order{ID: f.internal, Status: order.StatusFailed}, nil
}

type fakeProfiles struct{ refreshed []uuid.UUID }

func (f *fakeProfiles) Refresh(_ context.Context, userID uuid.UUID) error {
	f.refreshed = append(f.refreshed, userID)
	return nil
}

type fixture struct {
	svc      *Service
	cart     *fakeCart
	coupons  *fakeCoupons
	orders   *fakeOrders
	profiles *fakeProfiles
	store    RedisStore
	user     uuid.UUID
	tutorA   uuid.UUID
	tutorB   uuid.UUID
	now      time.Time
}

func course(tutor uuid.UUID, name string, price int64) catalog.Course {
	return catalog.Course{
		ID:              uuid.New(),
		Title:           name + " course",
		Price:           decimal.NewFromInt(price),
		OfferPercentage: decimal.Zero,
		TutorID:         tutor,
		TutorName:       name,
		IsListed:        true,
		IsActive:        true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		user:     uuid.New(),
		tutorA:   uuid.New(),
		tutorB:   uuid.New(),
		coupons:  &fakeCoupons{discounts: map[string]decimal.Decimal{"SAVE100": dec("100"), "TENB": dec("50")}},
		orders:   &fakeOrders{internal: uuid.New()},
		profiles: &fakeProfiles{},
		store:    RedisStore{R: rdb, TTL: time.Minute},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.cart = &fakeCart{agg: cart.Build(cart.ModeCart, []cart.LineItem{
		{ID: uuid.New(), Course: course(f.tutorA, "Asha", 600)},
		{ID: uuid.New(), Course: course(f.tutorB, "Bilal", 400)},
	})}
	f.svc = &Service{
		Store:     f.store,
		Cart:      f.cart,
		Coupons:   f.coupons,
		Orders:    f.orders,
		Clearer:   f.cart,
		Profiles:  f.profiles,
		Locker:    lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: time.Second},
		LockTTL:   5 * time.Second,
		TaxBps:    300,
		Redirects: Redirects{BaseURL: "https://learn.example.com"},
		Now:       func() time.Time { return f.now },
	}
	f.orders.quote = f.quote
	return f
}

// quote reprices req the way the order service does: every coupon is
// revalidated against the vendor subtotal it targets.
func (f *fixture) quote(req order.CreateRequest) pricing.Summary {
	agg, _ := f.cart.Load(context.Background(), req.UserID, req.Mode, req.CourseID)
	discounts := make([]decimal.Decimal, 0, len(req.Coupons))
	for _, ac := range req.Coupons {
		group, ok := agg.Group(ac.TutorID)
		if !ok {
			continue
		}
		res, err := f.coupons.result(coupon.ValidateRequest{Code: ac.Code, TutorID: ac.TutorID, TotalAmount: group.Subtotal})
		if err != nil {
			continue
		}
		discounts = append(discounts, res.Discount.Amount)
	}
	return pricing.Compose(agg.Subtotal, discounts, 300)
}

func (f *fixture) start(t *testing.T) View {
	t.Helper()
	v, err := f.svc.Start(context.Background(), f.user, cart.ModeCart, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, StateIdle, v.State)
	return v
}

func TestApplyCouponToSelectedVendor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.svc.SelectVendor(ctx, f.user, v.ID, f.tutorB)
	require.NoError(t, err)
	v, err = f.svc.ApplyCoupon(ctx, f.user, v.ID, " save100 ", nil)
	require.NoError(t, err)

	require.Len(t, v.AppliedCoupons, 1)
	applied, ok := v.AppliedCoupons[f.tutorB]
	require.True(t, ok)
	require.Equal(t, "SAVE100", applied.Coupon.Code)

	require.Len(t, f.coupons.calls, 1)
	call := f.coupons.calls[0]
	require.Equal(t, f.tutorB, call.TutorID)
	require.True(t, dec("400").Equal(call.TotalAmount))
	require.Len(t, call.CourseIDs, 1)

	require.True(t, dec("1000").Equal(v.Summary.Subtotal))
	require.True(t, dec("100").Equal(v.Summary.CouponDiscount))
	require.True(t, dec("27").Equal(v.Summary.Tax))
	require.Equal(t, int64(92700), v.Summary.AmountMinor)

	stored, err := f.store.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, stored.AppliedCoupons, 1)
}

func TestApplyCouponNeedsVendorWithSeveralGroups(t *testing.T) {
	f := newFixture(t)
	v := f.start(t)

	_, err := f.svc.ApplyCoupon(context.Background(), f.user, v.ID, "SAVE100", nil)
	require.ErrorIs(t, err, ErrVendorRequired)
	require.Empty(t, f.coupons.calls)
}

func TestApplyCouponSingleVendorIsImplicit(t *testing.T) {
	f := newFixture(t)
	f.cart.agg = cart.Build(cart.ModeCart, []cart.LineItem{{ID: uuid.New(), Course: course(f.tutorA, "Asha", 600)}})
	v := f.start(t)

	v, err := f.svc.ApplyCoupon(context.Background(), f.user, v.ID, "SAVE100", nil)
	require.NoError(t, err)
	require.Contains(t, v.AppliedCoupons, f.tutorA)
}

func TestApplyCouponRejectsSecondCouponLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	tutor := f.tutorA
	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &tutor)
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(ctx, f.user, v.ID, "TENB", &tutor)
	require.ErrorIs(t, err, ErrCouponAlreadyApplied)

	other := f.tutorB
	_, err = f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &other)
	require.ErrorIs(t, err, ErrCouponAlreadyApplied)

	require.Len(t, f.coupons.calls, 1)
}

func TestApplyCouponEmptyCode(t *testing.T) {
	f := newFixture(t)
	v := f.start(t)
	_, err := f.svc.ApplyCoupon(context.Background(), f.user, v.ID, "   ", nil)
	require.ErrorIs(t, err, coupon.ErrCodeRequired)
	require.Empty(t, f.coupons.calls)
}

func TestApplyCouponRejectedLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	tutor := f.tutorA

	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "NOPE", &tutor)
	require.ErrorIs(t, err, coupon.ErrCouponNotFound)

	got, err := f.svc.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Empty(t, got.AppliedCoupons)
	require.True(t, dec("0").Equal(got.Summary.CouponDiscount))
}

func TestRemoveCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	tutor := f.tutorA
	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &tutor)
	require.NoError(t, err)

	v, err = f.svc.RemoveCoupon(ctx, f.user, v.ID, tutor)
	require.NoError(t, err)
	require.Empty(t, v.AppliedCoupons)
	require.Equal(t, int64(103000), v.Summary.AmountMinor)
}

func TestSessionBelongsToOwner(t *testing.T) {
	f := newFixture(t)
	v := f.start(t)
	_, err := f.svc.Get(context.Background(), uuid.New(), v.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPayOpensWidget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	tutor := f.tutorB
	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &tutor)
	require.NoError(t, err)

	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, v.State)
	require.NotNil(t, v.Draft)
	require.Equal(t, "order_gw1", v.Draft.GatewayOrderID)

	require.Len(t, f.orders.created, 1)
	require.Equal(t, []order.AppliedCoupon{{TutorID: f.tutorB, Code: "SAVE100"}}, f.orders.created[0].Coupons)

	// a second Pay while the widget is open reuses the draft
	again, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, v.Draft.GatewayOrderID, again.Draft.GatewayOrderID)
	require.Len(t, f.orders.created, 1)

	_, err = f.svc.ApplyCoupon(ctx, f.user, v.ID, "TENB", &f.tutorA)
	require.ErrorIs(t, err, ErrPaymentInProgress)
}

func TestPayWhileCreatingOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	var inner error
	f.orders.onCreate = func() {
		_, inner = f.svc.Pay(ctx, f.user, v.ID)
	}
	_, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrPaymentInProgress)
	require.Len(t, f.orders.created, 1)
}

func TestPayRecoversStaleCreatingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	sess, err := f.store.Get(ctx, v.ID)
	require.NoError(t, err)
	sess.State = StateCreatingOrder
	sess.UpdatedAt = f.now.Add(-5 * time.Minute)
	require.NoError(t, f.store.Save(ctx, sess))

	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, v.State)
	require.Nil(t, v.Failure)
}

func TestPaySupersededAttemptIsAbandoned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	var (
		newer    View
		newerErr error
		calls    int
	)
	f.orders.onCreate = func() {
		calls++
		if calls > 1 {
			return
		}
		// the first mint outlives the stale window and a retry takes over
		f.now = f.now.Add(5 * time.Minute)
		newer, newerErr = f.svc.Pay(ctx, f.user, v.ID)
	}

	_, err := f.svc.Pay(ctx, f.user, v.ID)
	require.ErrorIs(t, err, ErrAttemptSuperseded)
	require.NoError(t, newerErr)
	require.Equal(t, StateWidgetOpen, newer.State)

	got, err := f.svc.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, got.State)
	require.Equal(t, newer.Draft.GatewayOrderID, got.Draft.GatewayOrderID)
	require.Equal(t, newer.Attempt, got.Attempt)

	require.Len(t, f.orders.created, 2)
	require.Len(t, f.orders.failed, 1)
	require.Equal(t, payment.KindOrderCreation, f.orders.failed[0].Kind)
}

func TestPayOrderCreationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	f.orders.createErr = order.ErrNothingToCharge

	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, v.State)
	require.Equal(t, payment.KindOrderCreation, v.Failure.Kind)
	require.Contains(t, v.RedirectURL, "error_code=ORDER_CREATION_FAILED")

	f.orders.createErr = nil
	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, v.State)
	require.Nil(t, v.Failure)
}

func TestPaymentSucceededCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)

	v, err = f.svc.PaymentSucceeded(ctx, f.user, v.ID, payment.Callback{OrderID: "order_gw1", PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, v.State)
	require.Equal(t, f.orders.internal, *v.OrderID)
	require.Equal(t, "https://learn.example.com/order-success/"+f.orders.internal.String(), v.RedirectURL)
	require.Equal(t, []uuid.UUID{f.user}, f.cart.cleared)
	require.Equal(t, []uuid.UUID{f.user}, f.profiles.refreshed)

	_, err = f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &f.tutorA)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestDirectModeKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := course(f.tutorA, "Asha", 600)
	f.cart.agg = cart.Build(cart.ModeDirect, []cart.LineItem{{ID: c.ID, Course: c}})

	v, err := f.svc.Start(ctx, f.user, cart.ModeDirect, c.ID)
	require.NoError(t, err)
	require.Equal(t, f.tutorA, *v.SelectedTutor)
	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	v, err = f.svc.PaymentSucceeded(ctx, f.user, v.ID, payment.Callback{OrderID: "order_gw1", PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, v.State)
	require.Empty(t, f.cart.cleared)
	require.Len(t, f.profiles.refreshed, 1)
}

func TestPaymentSucceededCallbackMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)

	_, err = f.svc.PaymentSucceeded(ctx, f.user, v.ID, payment.Callback{OrderID: "order_other", PaymentID: "pay_1", Signature: "sig"})
	require.ErrorIs(t, err, ErrCallbackMismatch)
	require.Empty(t, f.orders.verified)
}

func TestVerificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	f.orders.verifyErr = payment.ErrSignatureMismatch

	v, err = f.svc.PaymentSucceeded(ctx, f.user, v.ID, payment.Callback{OrderID: "order_gw1", PaymentID: "pay_9", Signature: "bad"})
	require.NoError(t, err)
	require.Equal(t, StateFailed, v.State)
	require.Equal(t, payment.KindVerification, v.Failure.Kind)

	u, err := url.Parse(v.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "VERIFICATION_FAILED", q.Get("error_code"))
	require.Equal(t, f.orders.internal.String(), q.Get("order_id"))
	require.Equal(t, "pay_9", q.Get("payment_id"))
	require.Empty(t, f.cart.cleared)
}

func TestDismiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)

	v, err = f.svc.Dismiss(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateFailed, v.State)

	u, err := url.Parse(v.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "/payment-failed", u.Path)
	require.Equal(t, "USER_CANCELLED", u.Query().Get("error_code"))
	require.Equal(t, "Payment cancelled by user", u.Query().Get("error_description"))
	require.Len(t, f.orders.failed, 1)
	require.Empty(t, f.cart.cleared)
}

func TestDismissOutsideWidget(t *testing.T) {
	f := newFixture(t)
	v := f.start(t)
	_, err := f.svc.Dismiss(context.Background(), f.user, v.ID)
	require.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestPaymentFailedNormalises(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)

	v, err = f.svc.PaymentFailed(ctx, f.user, v.ID, payment.GatewayError{
		Code:        "BAD_REQUEST_ERROR",
		Description: "Your payment could not be completed due to insufficient account balance",
		Metadata:    map[string]any{"order_id": "order_gw1", "payment_id": "pay_3"},
	})
	require.NoError(t, err)
	require.Equal(t, payment.KindInsufficient, v.Failure.Kind)
	require.Equal(t, "pay_3", v.Failure.PaymentID)
	require.Equal(t, f.orders.internal.String(), v.Failure.OrderID)

	// retry after failure mints a fresh order
	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, v.State)
	require.Len(t, f.orders.created, 2)
}

func TestCouponDiscountFollowsVendorSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coupons.discounts["BIG350"] = dec("350")
	a := course(f.tutorA, "Asha", 600)
	b := course(f.tutorB, "Bilal", 400)
	f.cart.agg = cart.Build(cart.ModeCart, []cart.LineItem{{ID: uuid.New(), Course: a}, {ID: uuid.New(), Course: b}})
	v := f.start(t)

	v, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "BIG350", &f.tutorB)
	require.NoError(t, err)
	require.True(t, dec("350").Equal(v.Summary.CouponDiscount))

	// an offer lands on the course after the coupon was applied
	b.OfferPercentage = dec("90")
	f.cart.agg = cart.Build(cart.ModeCart, []cart.LineItem{{ID: uuid.New(), Course: a}, {ID: uuid.New(), Course: b}})

	v, err = f.svc.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.True(t, dec("640").Equal(v.Summary.Subtotal))
	require.True(t, dec("40").Equal(v.Summary.CouponDiscount))
	require.True(t, dec("40").Equal(v.AppliedCoupons[f.tutorB].Discount.Amount))
	require.Equal(t, int64(61800), v.Summary.AmountMinor)
	shown := v.Summary.AmountMinor

	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, StateWidgetOpen, v.State)
	require.Equal(t, shown, v.Draft.Amount)
	require.Equal(t, v.Draft.Amount, v.Summary.AmountMinor)
}

func TestCouponDroppedWhenItNoLongerValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "TENB", &f.tutorB)
	require.NoError(t, err)

	delete(f.coupons.discounts, "TENB")
	f.cart.agg = cart.Build(cart.ModeCart, []cart.LineItem{
		{ID: uuid.New(), Course: course(f.tutorA, "Asha", 600)},
		{ID: uuid.New(), Course: course(f.tutorB, "Bilal", 300)},
	})

	v, err = f.svc.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Empty(t, v.AppliedCoupons)
	require.True(t, v.Summary.CouponDiscount.IsZero())
	require.Equal(t, int64(92700), v.Summary.AmountMinor)

	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Empty(t, f.orders.created[0].Coupons)
	require.Equal(t, int64(92700), v.Draft.Amount)
	require.Empty(t, v.AppliedCoupons)
}

func TestOpenWidgetShowsChargedSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.start(t)
	_, err := f.svc.ApplyCoupon(ctx, f.user, v.ID, "SAVE100", &f.tutorB)
	require.NoError(t, err)

	v, err = f.svc.Pay(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, int64(92700), v.Draft.Amount)

	// the cart changes in another tab while the widget is open
	f.cart.agg = cart.Build(cart.ModeCart, []cart.LineItem{{ID: uuid.New(), Course: course(f.tutorA, "Asha", 600)}})

	v, err = f.svc.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Equal(t, v.Draft.Amount, v.Summary.AmountMinor)
	require.Contains(t, v.AppliedCoupons, f.tutorB)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)

	sess := newSession(f.user, cart.ModeCart, uuid.Nil, f.now)
	sess.AppliedCoupons[f.tutorA] = AppliedCoupon{TutorID: f.tutorA, Coupon: coupon.Summary{Code: "SAVE100"}, Discount: coupon.DiscountAmount{Amount: dec("100")}}
	require.NoError(t, f.store.Save(ctx, sess))

	got, err := f.store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.True(t, dec("100").Equal(got.AppliedCoupons[f.tutorA].Discount.Amount))
}
