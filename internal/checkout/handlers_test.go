package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/common"
)

func newRouter(f *fixture) http.Handler {
	h := &Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), f.user.String())))
		})
	})
	r.Route("/api/v1/checkout/sessions", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, View) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out struct {
		Data View `json:"data"`
	}
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out.Data
}

func TestHandlerCheckoutFlow(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec, v := do(t, h, http.MethodPost, "/api/v1/checkout/sessions", `{"mode":"cart"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/checkout/sessions/" + v.ID.String()

	rec, _ = do(t, h, http.MethodPost, base+"/coupons", `{"code":"SAVE100"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, v = do(t, h, http.MethodPost, base+"/coupons", `{"code":"SAVE100","tutorId":"`+f.tutorB.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(92700), v.Summary.AmountMinor)

	rec, v = do(t, h, http.MethodPost, base+"/pay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StateWidgetOpen, v.State)

	rec, v = do(t, h, http.MethodPost, base+"/payment/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, v.RedirectURL, "error_code=USER_CANCELLED")
}

func TestHandlerRejectsInvalidCoupon(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	_, v := do(t, h, http.MethodPost, "/api/v1/checkout/sessions", `{"mode":"cart"}`)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/checkout/sessions/"+v.ID.String()+"/coupons",
		`{"code":"NOPE","tutorId":"`+f.tutorA.String()+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "COUPON_INVALID")
}

func TestHandlerUnknownSession(t *testing.T) {
	f := newFixture(t)
	rec, _ := do(t, newRouter(f), http.MethodGet, "/api/v1/checkout/sessions/"+f.tutorA.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDirectRequiresCourse(t *testing.T) {
	f := newFixture(t)
	rec, _ := do(t, newRouter(f), http.MethodPost, "/api/v1/checkout/sessions", `{"mode":"direct"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPErrorSupersededAttempt(t *testing.T) {
	var appErr *common.AppError
	require.ErrorAs(t, httpError(ErrAttemptSuperseded), &appErr)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	require.Equal(t, "PAYMENT_SUPERSEDED", appErr.Code)
}
