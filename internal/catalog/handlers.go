package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avirag26/scholaro-api/internal/common"
)

// Handler exposes public course endpoints.
type Handler struct {
	Service *Service
}

// Courses handles GET /api/v1/courses.
func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	params := ListParams{
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  perPage,
		Offset: common.Pagination{Page: page, PerPage: perPage}.Offset(),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("tutorId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "tutorId must be a UUID", nil)
			return
		}
		params.TutorID = &id
	}
	result, err := h.Service.List(r.Context(), params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(result.Total)},
	})
}

// Course handles GET /api/v1/courses/{id}.
func (h *Handler) Course(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "course id must be a UUID", nil)
		return
	}
	c, err := h.Service.Course(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c.View()})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrCourseNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	common.WriteError(w, err)
}
