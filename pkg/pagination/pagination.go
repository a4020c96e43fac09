package pagination

import "math"

const (
	DefaultPerPage = 15
	MaxPerPage     = 100

	// MaxPage keeps Offset within a 32-bit row offset at any page size.
	MaxPage = math.MaxInt32 / MaxPerPage
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// DefaultParams returns the first page with the default page size.
func DefaultParams() Params {
	return Params{Page: 1, PerPage: DefaultPerPage}
}

// Normalize clamps page to [1, MaxPage] and per-page to [1, MaxPerPage],
// filling zero values with defaults.
func (p Params) Normalize() Params {
	switch {
	case p.Page < 1:
		p.Page = 1
	case p.Page > MaxPage:
		p.Page = MaxPage
	}
	switch {
	case p.PerPage <= 0:
		p.PerPage = DefaultPerPage
	case p.PerPage > MaxPerPage:
		p.PerPage = MaxPerPage
	}
	return p
}

// Offset returns the number of rows preceding the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// LastPage returns ceil(total/perPage). It is 0 only when total is 0.
func LastPage(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// Result wraps a paginated response.
type Result[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PerPage  int `json:"per_page"`
	LastPage int `json:"last_page"`
}

// NewResult creates a paginated result. A nil slice is encoded as [].
func NewResult[T any](data []T, total int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	return Result[T]{
		Data:     data,
		Total:    total,
		Page:     params.Page,
		PerPage:  params.PerPage,
		LastPage: LastPage(total, params.PerPage),
	}
}
