// Package pagination reads limit/offset query parameters and wraps paged
// list responses.
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

// FromContext reads ?limit= and ?offset=, accepting _count and _offset as
// aliases. Out-of-range values are clamped.
func FromContext(c echo.Context) Params {
	limit := firstInt(c, "limit", "_count")
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := firstInt(c, "offset", "_offset")
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func firstInt(c echo.Context, names ...string) int {
	for _, name := range names {
		if n, err := strconv.Atoi(c.QueryParam(name)); err == nil && n != 0 {
			return n
		}
	}
	return 0
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Response is a page of T.
type Response[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// NewResponse never returns a nil Data slice so empty pages encode as [].
func NewResponse[T any](data []T, total, limit, offset int) *Response[T] {
	if data == nil {
		data = []T{}
	}
	r := &Response[T]{
		Data:   data,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	if (Params{Limit: limit, Offset: offset}).HasNext(total) {
		next := offset + limit
		r.HasMore = true
		r.NextOffset = &next
	}
	return r
}
