package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/obs"
)

var (
	// ErrInvalidInput is returned when an admin payload is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when a tutor touches another tutor's coupon.
	ErrForbidden = errors.New("coupon belongs to another tutor")
)

// Courses resolves current course data for server-side subtotals.
type Courses interface {
	Fresh(ctx context.Context, ids []uuid.UUID) ([]catalog.Course, error)
}

// ValidateRequest is one vendor group's coupon check.
type ValidateRequest struct {
	Code        string
	CourseIDs   []uuid.UUID
	TotalAmount decimal.Decimal
	TutorID     uuid.UUID
	UserID      uuid.UUID
}

// Result is a successful validation.
type Result struct {
	Coupon   Summary         `json:"coupon"`
	Discount DiscountAmount  `json:"discount"`
	Subtotal decimal.Decimal `json:"-"`
}

// DiscountAmount wraps the discount the way the storefront expects it.
type DiscountAmount struct {
	Amount decimal.Decimal `json:"amount"`
}

// Service validates and administers coupons.
type Service struct {
	Store   Store
	Courses Courses
	Now     func() time.Time
	Log     zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate is the pure rule check: it never records usage. The vendor
// subtotal is recomputed from the catalog; TotalAmount is used only when no
// catalog is wired.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (res Result, err error) {
	if s == nil || s.Store == nil {
		return Result{}, errors.New("coupon service not configured")
	}
	ctx, span := otel.Tracer("coupon.Service").Start(ctx, "coupon.Validate")
	defer span.End()
	defer func() {
		result := "valid"
		if err != nil {
			result = "rejected"
			span.RecordError(err)
		}
		obs.IncCoupon(result)
	}()

	code := NormalizeCode(req.Code)
	if code == "" {
		return Result{}, ErrCodeRequired
	}
	if len(req.CourseIDs) == 0 {
		return Result{}, ErrNotEligible
	}
	span.SetAttributes(attribute.String("coupon.code", code), attribute.String("coupon.tutor_id", req.TutorID.String()))

	c, err := s.Store.GetByCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if c.TutorID != req.TutorID {
		return Result{}, ErrWrongTutor
	}

	subtotal, err := s.vendorSubtotal(ctx, req)
	if err != nil {
		return Result{}, err
	}

	used := 0
	if c.PerUserLimit != nil && *c.PerUserLimit > 0 && req.UserID != uuid.Nil {
		used, err = s.Store.CountUsageByUser(ctx, c.ID, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("count coupon usage: %w", err)
		}
	}
	if err := c.Validate(s.now(), subtotal, used); err != nil {
		return Result{}, err
	}
	discount := c.Discount(subtotal)
	if !discount.IsPositive() {
		return Result{}, ErrNotEligible
	}
	return Result{Coupon: c.Summary(), Discount: DiscountAmount{Amount: discount}, Subtotal: subtotal}, nil
}

func (s *Service) vendorSubtotal(ctx context.Context, req ValidateRequest) (decimal.Decimal, error) {
	if s.Courses == nil {
		if req.TotalAmount.IsNegative() {
			return decimal.Zero, ErrNotEligible
		}
		return req.TotalAmount, nil
	}
	courses, err := s.Courses.Fresh(ctx, req.CourseIDs)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price courses: %w", err)
	}
	if len(courses) != len(req.CourseIDs) {
		return decimal.Zero, ErrNotEligible
	}
	subtotal := decimal.Zero
	for _, course := range courses {
		if course.TutorID != req.TutorID {
			return decimal.Zero, ErrWrongTutor
		}
		if !course.Available() {
			return decimal.Zero, ErrNotEligible
		}
		subtotal = subtotal.Add(course.FinalPrice())
	}
	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(subtotal) {
		s.Log.Debug().
			Str("client_total", req.TotalAmount.String()).
			Str("server_total", subtotal.String()).
			Msg("coupon subtotal differs from client")
	}
	return subtotal, nil
}

// Input is the tutor-editable part of a coupon.
type Input struct {
	Code         string
	Title        string
	Kind         Kind
	Value        decimal.Decimal
	MaxDiscount  *decimal.Decimal
	MinPurchase  decimal.Decimal
	UsageLimit   *int
	PerUserLimit *int
	ValidFrom    *time.Time
	ValidTo      *time.Time
	IsActive     bool
}

func (in Input) check() error {
	if !in.Kind.Valid() {
		return fmt.Errorf("kind must be percentage or fixed: %w", ErrInvalidInput)
	}
	if !in.Value.IsPositive() {
		return fmt.Errorf("value must be positive: %w", ErrInvalidInput)
	}
	if in.Kind == KindPercentage && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("percentage cannot exceed 100: %w", ErrInvalidInput)
	}
	if in.MinPurchase.IsNegative() {
		return fmt.Errorf("minPurchase cannot be negative: %w", ErrInvalidInput)
	}
	if in.ValidFrom != nil && in.ValidTo != nil && in.ValidTo.Before(*in.ValidFrom) {
		return fmt.Errorf("validTo precedes validFrom: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidInput)
	}
	return nil
}

func (in Input) apply(c *Coupon) {
	c.Title = strings.TrimSpace(in.Title)
	c.Kind = in.Kind
	c.Value = in.Value
	c.MaxDiscount = in.MaxDiscount
	c.MinPurchase = in.MinPurchase
	c.UsageLimit = in.UsageLimit
	c.PerUserLimit = in.PerUserLimit
	c.ValidFrom = in.ValidFrom
	c.ValidTo = in.ValidTo
	c.IsActive = in.IsActive
}

// Create issues a new coupon owned by tutorID.
func (s *Service) Create(ctx context.Context, tutorID uuid.UUID, in Input) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	code := NormalizeCode(in.Code)
	if code == "" {
		return Coupon{}, fmt.Errorf("code is required: %w", ErrInvalidInput)
	}
	if err := in.check(); err != nil {
		return Coupon{}, err
	}
	c := Coupon{Code: code, TutorID: tutorID}
	in.apply(&c)
	return s.Store.Create(ctx, c)
}

// Update edits a coupon owned by tutorID. The code itself is immutable.
func (s *Service) Update(ctx context.Context, tutorID, id uuid.UUID, in Input) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	c, err := s.owned(ctx, tutorID, id)
	if err != nil {
		return Coupon{}, err
	}
	if err := in.check(); err != nil {
		return Coupon{}, err
	}
	in.apply(&c)
	return s.Store.Update(ctx, c)
}

// Deactivate switches a coupon off without deleting its usage history.
func (s *Service) Deactivate(ctx context.Context, tutorID, id uuid.UUID) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	c, err := s.owned(ctx, tutorID, id)
	if err != nil {
		return Coupon{}, err
	}
	c.IsActive = false
	return s.Store.Update(ctx, c)
}

// List returns the tutor's coupons, newest first.
func (s *Service) List(ctx context.Context, tutorID uuid.UUID) ([]Coupon, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("coupon service not configured")
	}
	return s.Store.ListByTutor(ctx, tutorID)
}

func (s *Service) owned(ctx context.Context, tutorID, id uuid.UUID) (Coupon, error) {
	c, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return Coupon{}, err
	}
	if c.TutorID != tutorID {
		return Coupon{}, ErrForbidden
	}
	return c, nil
}
