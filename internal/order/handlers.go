package order

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avirag26/scholaro-api/internal/cart"
	"github.com/avirag26/scholaro-api/internal/catalog"
	"github.com/avirag26/scholaro-api/internal/common"
	"github.com/avirag26/scholaro-api/internal/coupon"
	"github.com/avirag26/scholaro-api/internal/lock"
	"github.com/avirag26/scholaro-api/internal/payment"
)

// Handler exposes order endpoints.
type Handler struct {
	Svc     *Service
	Webhook *Webhook
}

type createRequest struct {
	Mode     cart.Mode       `json:"mode" validate:"required,oneof=cart direct"`
	CourseID string          `json:"courseId" validate:"required_if=Mode direct,omitempty,uuid"`
	Coupons  []AppliedCoupon `json:"coupons" validate:"omitempty,dive"`
}

type failRequest struct {
	Error payment.GatewayError `json:"error"`
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
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

// Create handles POST /api/v1/orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	in := CreateRequest{UserID: userID, Mode: req.Mode, Coupons: req.Coupons}
	if req.CourseID != "" {
		in.CourseID = uuid.MustParse(req.CourseID)
	}
	draft, _, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": draft})
}

// Verify handles POST /api/v1/orders/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var cb payment.Callback
	if err := common.DecodeJSON(r, &cb); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Verify(r.Context(), userID, cb)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Fail handles POST /api/v1/orders/{id}/fail with the widget's error descriptor.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order id must be a UUID", nil)
		return
	}
	var req failRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	f := payment.Normalize(req.Error)
	o, err := h.Svc.Fail(r.Context(), userID, id, f)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o, "failure": f})
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	p := common.Pagination{Page: page, PerPage: perPage}
	orders, total, err := h.Svc.List(r.Context(), userID, perPage, p.Offset())
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	p.TotalItems = int(total)
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{"data": orders, "pagination": p})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order id must be a UUID", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), userID, id)
	if err != nil {
		common.WriteError(w, HTTPError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// RazorpayWebhook handles POST /api/v1/payments/razorpay/webhook.
func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Webhook == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	event, err := h.Webhook.Handle(r.Context(), body, r.Header.Get("X-Razorpay-Signature"))
	switch {
	case errors.Is(err, ErrWebhookReplay):
		common.JSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
	case errors.Is(err, payment.ErrSignatureMismatch):
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
	case err != nil:
		common.WriteError(w, HTTPError(err))
	default:
		common.JSON(w, http.StatusOK, map[string]any{"status": "ok", "event": event})
	}
}

// HTTPError maps order-flow errors onto API errors.
func HTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case common.IsAppError(err):
		return err
	case coupon.IsRuleError(err):
		return common.NewAppError("COUPON_INVALID", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, catalog.ErrCourseNotFound):
		return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrNothingToBuy), errors.Is(err, ErrNothingToCharge):
		return common.NewAppError("NOTHING_TO_CHARGE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, cart.ErrAlreadyEnrolled):
		return common.Conflict("ALREADY_ENROLLED", err)
	case errors.Is(err, ErrCouponVendorMissing), errors.Is(err, ErrDuplicateCoupon),
		errors.Is(err, ErrInvalidInput), errors.Is(err, cart.ErrInvalidInput):
		return common.BadRequest("BAD_REQUEST", err)
	case errors.Is(err, payment.ErrSignatureMismatch):
		return common.NewAppError("SIGNATURE_INVALID", "payment signature verification failed", http.StatusBadRequest, err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError("PAYMENT_IN_PROGRESS", "payment is already being processed", http.StatusConflict, err)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment gateway unavailable", http.StatusBadGateway, err)
	default:
		return err
	}
}
