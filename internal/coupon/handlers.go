package coupon

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/common"
)

// Handler exposes coupon validation and tutor administration.
type Handler struct {
	Svc *Service
}

type validateRequest struct {
	Code        string          `json:"code" validate:"required"`
	CourseIDs   []string        `json:"courseIds" validate:"required,min=1,dive,uuid"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TutorID     string          `json:"tutorId" validate:"required,uuid"`
}

// Validate handles POST /api/v1/coupons/validate. The body of a successful
// response is {coupon, discount}; failures carry the rule's message verbatim.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(req.CourseIDs))
	for _, raw := range req.CourseIDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	in := ValidateRequest{
		Code:        req.Code,
		CourseIDs:   ids,
		TotalAmount: req.TotalAmount,
		TutorID:     uuid.MustParse(req.TutorID),
	}
	if raw, ok := common.UserID(r.Context()); ok {
		in.UserID, _ = uuid.Parse(raw)
	}
	res, err := h.Svc.Validate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

type couponRequest struct {
	Code         string           `json:"code"`
	Title        string           `json:"title" validate:"required,max=120"`
	Kind         Kind             `json:"kind" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal  `json:"value"`
	MaxDiscount  *decimal.Decimal `json:"maxDiscount"`
	MinPurchase  decimal.Decimal  `json:"minPurchase"`
	UsageLimit   *int             `json:"usageLimit" validate:"omitempty,min=0"`
	PerUserLimit *int             `json:"perUserLimit" validate:"omitempty,min=0"`
	ValidFrom    *time.Time       `json:"validFrom"`
	ValidTo      *time.Time       `json:"validTo"`
	IsActive     *bool            `json:"isActive"`
}

func (req couponRequest) input() Input {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Input{
		Code:         req.Code,
		Title:        req.Title,
		Kind:         req.Kind,
		Value:        req.Value,
		MaxDiscount:  req.MaxDiscount,
		MinPurchase:  req.MinPurchase,
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
		IsActive:     active,
	}
}

func (h *Handler) tutor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return uuid.Nil, false
	}
	p, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	if !p.IsTutor() {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "tutor role required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /api/v1/tutor/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tutorID, ok := h.tutor(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.List(r.Context(), tutorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []Coupon{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Create handles POST /api/v1/tutor/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tutorID, ok := h.tutor(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Create(r.Context(), tutorID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// Update handles PATCH /api/v1/tutor/coupons/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tutorID, ok := h.tutor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "coupon id must be a UUID", nil)
		return
	}
	var req couponRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Update(r.Context(), tutorID, id, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Deactivate handles DELETE /api/v1/tutor/coupons/{id}.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tutorID, ok := h.tutor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "coupon id must be a UUID", nil)
		return
	}
	c, err := h.Svc.Deactivate(r.Context(), tutorID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// IsRuleError reports whether err is a coupon rule rejection rather than an
// infrastructure failure.
func IsRuleError(err error) bool {
	for _, target := range []error{
		ErrCodeRequired, ErrCouponNotFound, ErrCouponInactive, ErrCouponNotStarted, ErrCouponExpired,
		ErrUsageLimitReached, ErrPerUserLimitReached, ErrMinimumPurchaseUnmet, ErrWrongTutor, ErrNotEligible,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case IsRuleError(err):
		common.JSONError(w, http.StatusUnprocessableEntity, "COUPON_INVALID", err.Error(), nil)
	case errors.Is(err, ErrDuplicateCode):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
