package domain

import (
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/pagination"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// DefaultSort is the field listings and searches are ordered by.
const DefaultSort = "created_at"

// SortFields lists the fields a listing may be ordered by.
func SortFields() []string {
	return []string{"created_at", "updated_at", "name", "price", "sku"}
}

// ListFilter selects a page of live products from the record store.
type ListFilter struct {
	Category string
	Status   Status
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Search   string
	Sort     string
	Order    string
	pagination.Params
}

// Normalize fills defaults and clamps the page size.
func (f ListFilter) Normalize() ListFilter {
	if f.Sort == "" {
		f.Sort = DefaultSort
	}
	if f.Order == "" {
		f.Order = OrderDesc
	}
	f.Params = f.Params.Normalize()
	return f
}

// Validate checks enumerated fields and the price range.
func (f ListFilter) Validate() error {
	fields := validateCommon(f.Status, f.Sort, f.Order)
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		fields["max_price"] = "must be greater than or equal to min_price"
	}
	if len(fields) > 0 {
		return apperrors.Validation("the given data was invalid", fields)
	}
	return nil
}

// CacheParams returns the non-empty parameters that identify this page.
func (f ListFilter) CacheParams() map[string]string {
	params := map[string]string{
		"category": f.Category,
		"status":   string(f.Status),
		"search":   f.Search,
		"sort":     f.Sort,
		"order":    f.Order,
		"page":     strconv.Itoa(f.Page),
	}
	if f.MinPrice != nil {
		params["min_price"] = f.MinPrice.String()
	}
	if f.MaxPrice != nil {
		params["max_price"] = f.MaxPrice.String()
	}
	return params
}

// SearchParams describes a query against the search index.
type SearchParams struct {
	Term     string
	Category string
	Status   Status
	MinPrice *float64
	MaxPrice *float64
	Sort     string
	Order    string
	pagination.Params
}

// HasFilters reports whether any structured filter is set.
func (p SearchParams) HasFilters() bool {
	return p.Category != "" || p.Status != "" || p.MinPrice != nil || p.MaxPrice != nil
}

// Normalize fills defaults and clamps the page size.
func (p SearchParams) Normalize() SearchParams {
	if p.Sort == "" {
		p.Sort = DefaultSort
	}
	if p.Order == "" {
		p.Order = OrderDesc
	}
	p.Params = p.Params.Normalize()
	return p
}

// Validate checks enumerated fields and the price range.
func (p SearchParams) Validate() error {
	fields := validateCommon(p.Status, p.Sort, p.Order)
	if p.MinPrice != nil && p.MaxPrice != nil && *p.MinPrice > *p.MaxPrice {
		fields["max_price"] = "must be greater than or equal to min_price"
	}
	if len(fields) > 0 {
		return apperrors.Validation("the given data was invalid", fields)
	}
	return nil
}

// CacheParams returns the non-empty parameters that identify this query.
func (p SearchParams) CacheParams() map[string]string {
	params := map[string]string{
		"q":        p.Term,
		"category": p.Category,
		"status":   string(p.Status),
		"sort":     p.Sort,
		"order":    p.Order,
		"page":     strconv.Itoa(p.Page),
	}
	if p.MinPrice != nil {
		params["min_price"] = strconv.FormatFloat(*p.MinPrice, 'f', -1, 64)
	}
	if p.MaxPrice != nil {
		params["max_price"] = strconv.FormatFloat(*p.MaxPrice, 'f', -1, 64)
	}
	return params
}

func validateCommon(status Status, sort, order string) map[string]string {
	fields := map[string]string{}
	if status != "" && !status.Valid() {
		fields["status"] = "must be one of: active inactive"
	}
	if sort != "" && !slices.Contains(SortFields(), sort) {
		fields["sort"] = "must be one of: created_at updated_at name price sku"
	}
	if order != "" && order != OrderAsc && order != OrderDesc {
		fields["order"] = "must be one of: asc desc"
	}
	return fields
}
