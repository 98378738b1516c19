// Package pagination reads list paging from query strings and shapes paged
// JSON responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit/offset or page/per_page from the query string.
// Malformed or negative values fall back to the defaults, limit is capped at
// MaxLimit, and an explicit offset takes precedence over page.
func FromContext(c echo.Context) Params {
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = queryInt(c, "per_page")
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	offset := queryInt(c, "offset")
	if offset <= 0 {
		offset = 0
		if page := queryInt(c, "page"); page > 1 {
			offset = (page - 1) * limit
		}
	}
	return Params{Limit: limit, Offset: offset}
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

// Page is the 1-based page the offset falls on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Response is the envelope of every list endpoint.
type Response struct {
	Success     bool        `json:"success"`
	Data        interface{} `json:"data"`
	Total       int         `json:"total"`
	Limit       int         `json:"limit"`
	Offset      int         `json:"offset"`
	CurrentPage int         `json:"current_page"`
	LastPage    int         `json:"last_page"`
	HasMore     bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	last := 1
	if limit > 0 && total > 0 {
		last = (total + limit - 1) / limit
	}
	return &Response{
		Success:     true,
		Data:        data,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		CurrentPage: p.Page(),
		LastPage:    last,
		HasMore:     offset+limit < total,
	}
}
