package common

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// ErrorBody is the object nested under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// JSONError writes {"error": {...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]ErrorBody{
		"error": {Code: code, Message: message, Details: details},
	})
}

// Page is a parsed ?page=&limit= pair. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Offset is the number of rows to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// ParsePage reads page and limit from the query string. Missing or
// non-positive values fall back to page 1 and defaultLimit; limit is capped
// at maxLimit when maxLimit is positive.
func ParsePage(q url.Values, defaultLimit, maxLimit int) Page {
	p := Page{Page: 1, Limit: defaultLimit}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Pagination is the metadata block of a list response.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes the page count for total items.
func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Page: p.Page, PerPage: p.Limit, TotalItems: total, TotalPages: pages}
}

// Paginated writes a 200 list response and mirrors the total in X-Total-Count.
func Paginated(w http.ResponseWriter, items any, p Page, total int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": NewPagination(p, total),
	})
}
