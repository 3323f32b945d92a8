package coupon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/common"
)

func TestValidateHandlerShape(t *testing.T) {
	tutor, a, b, c := fixture()
	h := &Handler{Svc: &Service{Store: newFakeStore(c), Courses: fakeCourses{a.ID: a, b.ID: b}}}

	body := `{"code":"save20","courseIds":["` + a.ID.String() + `"],"totalAmount":600,"tutorId":"` + tutor.String() + `"}`
	rec := httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Coupon struct {
			ID    string `json:"id"`
			Code  string `json:"code"`
			Title string `json:"title"`
		} `json:"coupon"`
		Discount struct {
			Amount json.Number `json:"amount"`
		} `json:"discount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, c.ID.String(), resp.Coupon.ID)
	require.Equal(t, "SAVE20", resp.Coupon.Code)
	require.Equal(t, "120", resp.Discount.Amount.String())
}

func TestValidateHandlerSurfacesMessage(t *testing.T) {
	tutor, a, _, _ := fixture()
	h := &Handler{Svc: &Service{Store: newFakeStore(), Courses: fakeCourses{a.ID: a}}}

	body := `{"code":"nope","courseIds":["` + a.ID.String() + `"],"tutorId":"` + tutor.String() + `"}`
	rec := httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), ErrCouponNotFound.Error())
}

func TestAdminRequiresTutor(t *testing.T) {
	h := &Handler{Svc: &Service{Store: newFakeStore()}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tutor/coupons", nil)
	req = req.WithContext(common.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tutor/coupons", nil)
	req = req.WithContext(common.WithPrincipal(req.Context(), common.Principal{UserID: uuid.NewString(), Role: common.RoleTutor}))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
