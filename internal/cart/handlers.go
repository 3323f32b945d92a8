package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/common"
)

// Handler wires cart and wishlist services to HTTP.
type Handler struct {
	Svc *Service
}

// View is the cart payload.
type View struct {
	Groups         []VendorGroup   `json:"groups"`
	Unavailable    []Unavailable   `json:"unavailable"`
	Banner         string          `json:"banner,omitempty"`
	AvailableCount int             `json:"availableCount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// NewView renders an aggregate.
func NewView(a Aggregate) View {
	return View{
		Groups:         a.Groups,
		Unavailable:    a.Unavailable,
		Banner:         a.Banner(),
		AvailableCount: a.AvailableCount(),
		Subtotal:       a.Subtotal,
	}
}

type itemRequest struct {
	CourseID string `json:"courseId" validate:"required,uuid"`
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return uuid.Nil, false
	}
	return id, true
}

func courseParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "courseId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "courseId must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	agg, err := h.Svc.Cart(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(agg)})
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	entry, err := h.Svc.Add(r.Context(), userID, uuid.MustParse(req.CourseID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": entry.ID, "courseId": entry.CourseID}})
}

// RemoveItem handles DELETE /api/v1/cart/items/{courseId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Remove(r.Context(), userID, courseID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveToWishlist handles POST /api/v1/cart/items/{courseId}/move-to-wishlist.
func (h *Handler) MoveToWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.MoveToWishlist(r.Context(), userID, courseID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Wishlist handles GET /api/v1/wishlist.
func (h *Handler) Wishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.Wishlist(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// AddWishlist handles POST /api/v1/wishlist/items.
func (h *Handler) AddWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	entry, err := h.Svc.AddWishlist(r.Context(), userID, uuid.MustParse(req.CourseID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": entry.ID, "courseId": entry.CourseID}})
}

// RemoveWishlist handles DELETE /api/v1/wishlist/items/{courseId}.
func (h *Handler) RemoveWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveWishlist(r.Context(), userID, courseID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveToCart handles POST /api/v1/wishlist/items/{courseId}/move-to-cart.
func (h *Handler) MoveToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	courseID, ok := courseParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.MoveToCart(r.Context(), userID, courseID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound), errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAlreadyInCart), errors.Is(err, ErrAlreadyInWishlist), errors.Is(err, ErrAlreadyEnrolled):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrCourseUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, "COURSE_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
