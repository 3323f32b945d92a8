package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/obs"
	"github.com/avirag26/scholaro-api/internal/order"
	"github.com/avirag26/scholaro-api/internal/payment"
)

// Handler exposes checkout session endpoints.
type Handler struct {
	Svc *Service
	// CouponLimit, when set, wraps the apply-coupon route.
	CouponLimit func(http.Handler) http.Handler
}

// Routes mounts the session endpoints under /api/v1/checkout/sessions.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Start)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(obs.SessionIDMiddleware)
		r.Get("/", h.Get)
		r.Put("/vendor", h.SelectVendor)
		if h.CouponLimit != nil {
			r.With(h.CouponLimit).Post("/coupons", h.ApplyCoupon)
		} else {
			r.Post("/coupons", h.ApplyCoupon)
		}
		r.Delete("/coupons/{tutorID}", h.RemoveCoupon)
		r.Post("/pay", h.Pay)
		r.Post("/payment/success", h.Success)
		r.Post("/payment/dismiss", h.Dismiss)
		r.Post("/payment/failure", h.Failure)
	})
}

type startRequest struct {
	Mode     cart.Mode `json:"mode" validate:"required,oneof=cart direct"`
	CourseID string    `json:"courseId" validate:"required_if=Mode direct,omitempty,uuid"`
}

type vendorRequest struct {
	TutorID string `json:"tutorId" validate:"required,uuid"`
}

type couponRequest struct {
	Code    string `json:"code"`
	TutorID string `json:"tutorId" validate:"omitempty,uuid"`
}

type failureRequest struct {
	Error payment.GatewayError `json:"error"`
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
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

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.user(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "session id must be a UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func respond(w http.ResponseWriter, status int, v View, err error) {
	if err != nil {
		common.WriteError(w, httpError(err))
		return
	}
	common.JSON(w, status, map[string]any{"data": v})
}

// Start handles POST /api/v1/checkout/sessions.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req startRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	courseID := uuid.Nil
	if req.CourseID != "" {
		courseID = uuid.MustParse(req.CourseID)
	}
	v, err := h.Svc.Start(r.Context(), userID, req.Mode, courseID)
	respond(w, http.StatusCreated, v, err)
}

// Get handles GET /api/v1/checkout/sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Get(r.Context(), userID, id)
	respond(w, http.StatusOK, v, err)
}

// SelectVendor handles PUT /api/v1/checkout/sessions/{sessionID}/vendor.
func (h *Handler) SelectVendor(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	var req vendorRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.SelectVendor(r.Context(), userID, id, uuid.MustParse(req.TutorID))
	respond(w, http.StatusOK, v, err)
}

// ApplyCoupon handles POST /api/v1/checkout/sessions/{sessionID}/coupons.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	var tutorID *uuid.UUID
	if req.TutorID != "" {
		t := uuid.MustParse(req.TutorID)
		tutorID = &t
	}
	v, err := h.Svc.ApplyCoupon(r.Context(), userID, id, req.Code, tutorID)
	respond(w, http.StatusOK, v, err)
}

// RemoveCoupon handles DELETE /api/v1/checkout/sessions/{sessionID}/coupons/{tutorID}.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	tutorID, err := uuid.Parse(chi.URLParam(r, "tutorID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tutor id must be a UUID", nil)
		return
	}
	v, err := h.Svc.RemoveCoupon(r.Context(), userID, id, tutorID)
	respond(w, http.StatusOK, v, err)
}

// Pay handles POST /api/v1/checkout/sessions/{sessionID}/pay. The response
// carries the draft the storefront opens the payment widget with.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Pay(r.Context(), userID, id)
	respond(w, http.StatusOK, v, err)
}

// Success handles POST /api/v1/checkout/sessions/{sessionID}/payment/success.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	var cb payment.Callback
	if err := common.DecodeJSON(r, &cb); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.PaymentSucceeded(r.Context(), userID, id, cb)
	respond(w, http.StatusOK, v, err)
}

// Dismiss handles POST /api/v1/checkout/sessions/{sessionID}/payment/dismiss.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Dismiss(r.Context(), userID, id)
	respond(w, http.StatusOK, v, err)
}

// Failure handles POST /api/v1/checkout/sessions/{sessionID}/payment/failure.
func (h *Handler) Failure(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.session(w, r)
	if !ok {
		return
	}
	var req failureRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.PaymentFailed(r.Context(), userID, id, req.Error)
	respond(w, http.StatusOK, v, err)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return common.NotFound("SESSION_NOT_FOUND", err.Error())
	case errors.Is(err, ErrVendorRequired), errors.Is(err, ErrVendorNotInCheckout),
		errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCallbackMismatch):
		return common.BadRequest("BAD_REQUEST", err)
	case errors.Is(err, ErrCouponAlreadyApplied):
		return common.Conflict("COUPON_ALREADY_APPLIED", err)
	case errors.Is(err, ErrAttemptSuperseded):
		return common.Conflict("PAYMENT_SUPERSEDED", err)
	case errors.Is(err, ErrPaymentInProgress):
		return common.Conflict("PAYMENT_IN_PROGRESS", err)
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrInvalidTransition):
		return common.Conflict("INVALID_STATE", err)
	default:
		return order.HTTPError(err)
	}
}
