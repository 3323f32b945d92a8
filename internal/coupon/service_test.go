package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/catalog"
)

type fakeStore struct {
	byCode map[string]Coupon
	usage  map[uuid.UUID]int
	calls  int
}

func newFakeStore(cs ...Coupon) *fakeStore {
	f := &fakeStore{byCode: map[string]Coupon{}, usage: map[uuid.UUID]int{}}
	for _, c := range cs {
		f.byCode[c.Code] = c
	}
	return f
}

func (f *fakeStore) GetByCode(_ context.Context, code string) (Coupon, error) {
	f.calls++
	c, ok := f.byCode[code]
	if !ok {
		return Coupon{}, ErrCouponNotFound
	}
	return c, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (Coupon, error) {
	for _, c := range f.byCode {
		if c.ID == id {
			return c, nil
		}
	}
	return Coupon{}, ErrCouponNotFound
}

func (f *fakeStore) ListByTutor(_ context.Context, tutorID uuid.UUID) ([]Coupon, error) {
	var out []Coupon
	for _, c := range f.byCode {
		if c.TutorID == tutorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, c Coupon) (Coupon, error) {
	if _, ok := f.byCode[c.Code]; ok {
		return Coupon{}, ErrDuplicateCode
	}
	c.ID = uuid.New()
	f.byCode[c.Code] = c
	return c, nil
}

func (f *fakeStore) Update(_ context.Context, c Coupon) (Coupon, error) {
	f.byCode[c.Code] = c
	return c, nil
}

func (f *fakeStore) CountUsageByUser(_ context.Context, couponID, _ uuid.UUID) (int, error) {
	return f.usage[couponID], nil
}

type fakeCourses map[uuid.UUID]catalog.Course

func (f fakeCourses) Fresh(_ context.Context, ids []uuid.UUID) ([]catalog.Course, error) {
	var out []catalog.Course
	for _, id := range ids {
		if c, ok := f[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func fixture() (uuid.UUID, catalog.Course, catalog.Course, Coupon) {
	tutor := uuid.New()
	a := catalog.Course{ID: uuid.New(), TutorID: tutor, Price: dec("600"), OfferPercentage: decimal.Zero, IsListed: true, IsActive: true}
	b := catalog.Course{ID: uuid.New(), TutorID: tutor, Price: dec("500"), OfferPercentage: dec("20"), IsListed: true, IsActive: true}
	c := Coupon{ID: uuid.New(), Code: "SAVE20", Title: "Save 20", TutorID: tutor, Kind: KindPercentage, Value: dec("20"), IsActive: true}
	return tutor, a, b, c
}

func TestValidateRecomputesSubtotal(t *testing.T) {
	tutor, a, b, c := fixture()
	svc := &Service{Store: newFakeStore(c), Courses: fakeCourses{a.ID: a, b.ID: b}}

	res, err := svc.Validate(context.Background(), ValidateRequest{
		Code:        " save20 ",
		CourseIDs:   []uuid.UUID{a.ID, b.ID},
		TotalAmount: dec("1"), // ignored
		TutorID:     tutor,
	})
	require.NoError(t, err)
	require.Equal(t, "1000", res.Subtotal.String())
	require.Equal(t, "200", res.Discount.Amount.String())
	require.Equal(t, "SAVE20", res.Coupon.Code)
}

func TestValidateRejectsOtherTutor(t *testing.T) {
	_, a, b, c := fixture()
	svc := &Service{Store: newFakeStore(c), Courses: fakeCourses{a.ID: a, b.ID: b}}

	_, err := svc.Validate(context.Background(), ValidateRequest{Code: "SAVE20", CourseIDs: []uuid.UUID{a.ID}, TutorID: uuid.New()})
	require.ErrorIs(t, err, ErrWrongTutor)
}

func TestValidateEmptyCodeSkipsStore(t *testing.T) {
	store := newFakeStore()
	svc := &Service{Store: store}
	_, err := svc.Validate(context.Background(), ValidateRequest{Code: "  ", CourseIDs: []uuid.UUID{uuid.New()}})
	require.ErrorIs(t, err, ErrCodeRequired)
	require.Zero(t, store.calls)
}

func TestValidatePerUserLimit(t *testing.T) {
	tutor, a, _, c := fixture()
	c.PerUserLimit = ptr(1)
	store := newFakeStore(c)
	store.usage[c.ID] = 1
	svc := &Service{Store: store, Courses: fakeCourses{a.ID: a}}

	_, err := svc.Validate(context.Background(), ValidateRequest{Code: "SAVE20", CourseIDs: []uuid.UUID{a.ID}, TutorID: tutor, UserID: uuid.New()})
	require.ErrorIs(t, err, ErrPerUserLimitReached)
}

func TestValidateFallsBackToClientTotal(t *testing.T) {
	tutor, _, _, c := fixture()
	svc := &Service{Store: newFakeStore(c)}
	res, err := svc.Validate(context.Background(), ValidateRequest{Code: "SAVE20", CourseIDs: []uuid.UUID{uuid.New()}, TutorID: tutor, TotalAmount: dec("250")})
	require.NoError(t, err)
	require.Equal(t, "50", res.Discount.Amount.String())
}

func TestAdminLifecycle(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	svc := &Service{Store: store, Now: func() time.Time { return now }}
	tutor := uuid.New()
	ctx := context.Background()

	created, err := svc.Create(ctx, tutor, Input{Code: "welcome", Title: "Welcome", Kind: KindFixed, Value: dec("100"), IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "WELCOME", created.Code)

	_, err = svc.Create(ctx, tutor, Input{Code: "WELCOME", Title: "Again", Kind: KindFixed, Value: dec("1"), IsActive: true})
	require.ErrorIs(t, err, ErrDuplicateCode)

	_, err = svc.Create(ctx, tutor, Input{Code: "BAD", Title: "Bad", Kind: KindPercentage, Value: dec("120")})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Deactivate(ctx, uuid.New(), created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	off, err := svc.Deactivate(ctx, tutor, created.ID)
	require.NoError(t, err)
	require.False(t, off.IsActive)

	list, err := svc.List(ctx, tutor)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
