package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avirag26/scholaro-api/internal/catalog"
)

var (
	// ErrCourseUnavailable is returned when adding an unlisted, inactive or banned course.
	ErrCourseUnavailable = errors.New("course is not available for purchase")
	// ErrAlreadyEnrolled is returned when the student already owns the course.
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Courses resolves current course data for pricing.
type Courses interface {
	Fresh(ctx context.Context, ids []uuid.UUID) ([]catalog.Course, error)
	FreshOne(ctx context.Context, id uuid.UUID) (catalog.Course, error)
}

// Service encapsulates cart and wishlist operations.
type Service struct {
	Store   Store
	Courses Courses
	Log     zerolog.Logger
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Courses == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Load builds the aggregate for the given mode. Direct mode prices courseID
// alone and never touches the cart.
func (s *Service) Load(ctx context.Context, userID uuid.UUID, mode Mode, courseID uuid.UUID) (Aggregate, error) {
	switch mode {
	case ModeCart:
		return s.Cart(ctx, userID)
	case ModeDirect:
		return s.Direct(ctx, courseID)
	default:
		return Aggregate{}, fmt.Errorf("unknown mode %q: %w", mode, ErrInvalidInput)
	}
}

// Cart prices the user's saved cart.
func (s *Service) Cart(ctx context.Context, userID uuid.UUID) (Aggregate, error) {
	if err := s.ready(); err != nil {
		return Aggregate{}, err
	}
	entries, err := s.Store.ListCart(ctx, userID)
	if err != nil {
		return Aggregate{}, fmt.Errorf("list cart: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CourseID)
	}
	courses, err := s.Courses.Fresh(ctx, ids)
	if err != nil {
		return Aggregate{}, err
	}
	byID := make(map[uuid.UUID]catalog.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	items := make([]LineItem, 0, len(entries))
	for _, e := range entries {
		c, ok := byID[e.CourseID]
		if !ok {
			s.Log.Warn().Str("course_id", e.CourseID.String()).Msg("cart references missing course")
			continue
		}
		items = append(items, LineItem{ID: e.ID, Course: c})
	}
	return Build(ModeCart, items), nil
}

// Direct prices a single course.
func (s *Service) Direct(ctx context.Context, courseID uuid.UUID) (Aggregate, error) {
	if err := s.ready(); err != nil {
		return Aggregate{}, err
	}
	if courseID == uuid.Nil {
		return Aggregate{}, fmt.Errorf("courseId is required: %w", ErrInvalidInput)
	}
	c, err := s.Courses.FreshOne(ctx, courseID)
	if err != nil {
		return Aggregate{}, err
	}
	return Build(ModeDirect, []LineItem{{ID: c.ID, Course: c}}), nil
}

// purchasable rejects unavailable courses and courses the user already owns.
func (s *Service) purchasable(ctx context.Context, userID, courseID uuid.UUID) error {
	c, err := s.Courses.FreshOne(ctx, courseID)
	if err != nil {
		return err
	}
	if !c.Available() {
		return ErrCourseUnavailable
	}
	enrolled, err := s.Store.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled {
		return ErrAlreadyEnrolled
	}
	return nil
}

// Add puts a course in the cart.
func (s *Service) Add(ctx context.Context, userID, courseID uuid.UUID) (Entry, error) {
	if err := s.ready(); err != nil {
		return Entry{}, err
	}
	if err := s.purchasable(ctx, userID, courseID); err != nil {
		return Entry{}, err
	}
	return s.Store.AddCart(ctx, userID, courseID)
}

// Remove deletes a course from the cart.
func (s *Service) Remove(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.RemoveCart(ctx, userID, courseID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.ClearCart(ctx, userID)
}

// Wishlist returns the wishlisted courses, newest last.
func (s *Service) Wishlist(ctx context.Context, userID uuid.UUID) ([]catalog.CourseView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	entries, err := s.Store.ListWishlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CourseID)
	}
	courses, err := s.Courses.Fresh(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]catalog.CourseView, 0, len(courses))
	for _, c := range courses {
		views = append(views, c.View())
	}
	return views, nil
}

// AddWishlist wishlists a course. Unavailable courses may still be wishlisted.
func (s *Service) AddWishlist(ctx context.Context, userID, courseID uuid.UUID) (Entry, error) {
	if err := s.ready(); err != nil {
		return Entry{}, err
	}
	if _, err := s.Courses.FreshOne(ctx, courseID); err != nil {
		return Entry{}, err
	}
	return s.Store.AddWishlist(ctx, userID, courseID)
}

// RemoveWishlist deletes a course from the wishlist.
func (s *Service) RemoveWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.RemoveWishlist(ctx, userID, courseID)
}

// MoveToWishlist moves a cart item to the wishlist.
func (s *Service) MoveToWishlist(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Store.MoveToWishlist(ctx, userID, courseID)
}

// MoveToCart moves a wishlist item to the cart, applying the same checks as Add.
func (s *Service) MoveToCart(ctx context.Context, userID, courseID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.purchasable(ctx, userID, courseID); err != nil {
		return err
	}
	return s.Store.MoveToCart(ctx, userID, courseID)
}
