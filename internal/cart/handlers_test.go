package cart

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/common"
)

func TestHandlerGetRendersBanner(t *testing.T) {
	tutor := uuid.New()
	ok := course(tutor, "Asha", 1000, 0)
	gone := course(tutor, "Asha", 300, 0)
	gone.IsBanned = true
	user := uuid.New()
	store := newMemStore()
	store.cart[user] = []Entry{{ID: uuid.New(), CourseID: ok.ID}, {ID: uuid.New(), CourseID: gone.ID}}
	h := &Handler{Svc: &Service{Store: store, Courses: &fakeCourses{byID: map[uuid.UUID]catalog.Course{ok.ID: ok, gone.ID: gone}}}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req = req.WithContext(common.WithUserID(req.Context(), user.String()))
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1 course removed", body.Data.Banner)
	require.Equal(t, 1, body.Data.AvailableCount)
	require.Equal(t, "1000", body.Data.Subtotal.String())
}

func TestHandlerRequiresAuth(t *testing.T) {
	h := &Handler{Svc: &Service{Store: newMemStore(), Courses: &fakeCourses{}}}
	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerAddItemValidatesPayload(t *testing.T) {
	h := &Handler{Svc: &Service{Store: newMemStore(), Courses: &fakeCourses{}}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"courseId":"nope"}`))
	req = req.WithContext(common.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandlerAddItemConflictWhenEnrolled(t *testing.T) {
	c := course(uuid.New(), "Asha", 100, 0)
	store := newMemStore()
	store.enrolled[c.ID] = true
	h := &Handler{Svc: &Service{Store: store, Courses: &fakeCourses{byID: map[uuid.UUID]catalog.Course{c.ID: c}}}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"courseId":"`+c.ID.String()+`"}`))
	req = req.WithContext(common.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}
