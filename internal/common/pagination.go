package common

import (
	"net/http"
	"strconv"
)

const maxPerPage = 100

// Pagination is the page envelope attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

func (p Pagination) Offset() int {
	return max(p.Page-1, 0) * p.PerPage
}

// ParsePagination reads ?page and ?limit, falling back to page 1 and
// defaultPerPage. limit is capped at 100.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	q := r.URL.Query()
	return positiveOr(q.Get("page"), 1), min(positiveOr(q.Get("limit"), defaultPerPage), maxPerPage)
}

func positiveOr(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
