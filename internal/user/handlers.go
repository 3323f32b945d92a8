package user

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/avirag26/scholaro-api/internal/common"
)

// Handler exposes the current user's profile.
type Handler struct {
	Svc *Service
}

// Me handles GET /api/v1/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "user service not configured", nil)
		return
	}
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return
	}
	p, err := h.Svc.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}
