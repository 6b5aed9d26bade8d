package pagination

import (
	"math"
	"net/http"
	"strconv"
)

// Params represents pagination parameters
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Limit   int `json:"-"` // Calculated from PerPage
	Offset  int `json:"-"` // Calculated from Page and PerPage
}

// Response represents a paginated response
type Response[T any] struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []T `json:"results"`
}

// Window is a raw limit/offset pair, used where callers page by offset
type Window struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	// DefaultPerPage is the default number of items per page
	DefaultPerPage = 20
	// MaxPerPage is the maximum allowed items per page
	MaxPerPage = 100
	// MaxOffset bounds Page*PerPage so the SQL OFFSET never overflows
	MaxOffset = math.MaxInt32
)

// ParseParams extracts page/per_page parameters from HTTP request
func ParseParams(r *http.Request) Params {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage := ClampLimit(atoiOrZero(r.URL.Query().Get("per_page")), DefaultPerPage, MaxPerPage)
	if maxPage := MaxOffset/perPage + 1; page > maxPage {
		page = maxPage
	}

	return Params{
		Page:    page,
		PerPage: perPage,
		Limit:   perPage,
		Offset:  (page - 1) * perPage,
	}
}

// ParseWindow extracts limit/offset parameters, applying the given default and cap
func ParseWindow(r *http.Request, defaultLimit, maxLimit int) Window {
	offset := atoiOrZero(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}
	return Window{
		Limit:  ClampLimit(atoiOrZero(r.URL.Query().Get("limit")), defaultLimit, maxLimit),
		Offset: offset,
	}
}

// ClampLimit returns defaultLimit for non-positive values and caps at maxLimit
func ClampLimit(limit, defaultLimit, maxLimit int) int {
	if limit < 1 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// NewResponse creates a new paginated response
func NewResponse[T any](results []T, page, perPage, totalResults int) Response[T] {
	if results == nil {
		results = []T{}
	}
	return Response[T]{
		Page:         page,
		PerPage:      perPage,
		TotalPages:   CalculateTotalPages(totalResults, perPage),
		TotalResults: totalResults,
		Results:      results,
	}
}

// CalculateTotalPages calculates the total number of pages
func CalculateTotalPages(totalResults, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	pages := (totalResults + perPage - 1) / perPage
	if pages < 1 {
		return 1
	}
	return pages
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
