package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/pagination"
)

// parsePagination reads page and per_page. Out-of-range values are clamped
// later; only non-numeric input is rejected.
func parsePagination(q url.Values) (pagination.Params, error) {
	var p pagination.Params
	var err error
	if p.Page, err = intParam(q, "page"); err != nil {
		return p, err
	}
	if p.PerPage, err = intParam(q, "per_page"); err != nil {
		return p, err
	}
	return p, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be a valid integer", name))
	}
	return n, nil
}

// priceFields collects non-numeric price bounds as field errors.
type priceFields map[string]string

func (f priceFields) decimal(q url.Values, name string) *decimal.Decimal {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		f[name] = "must be a number"
		return nil
	}
	return &d
}

func (f priceFields) float(q url.Values, name string) *float64 {
	d := f.decimal(q, name)
	if d == nil {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}

func (f priceFields) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperrors.Validation("the given data was invalid", f)
}

// parseListFilter builds a store listing filter from the query string.
func parseListFilter(q url.Values) (domain.ListFilter, error) {
	params, err := parsePagination(q)
	if err != nil {
		return domain.ListFilter{}, err
	}

	fields := priceFields{}
	filter := domain.ListFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Status:   domain.Status(strings.TrimSpace(q.Get("status"))),
		Search:   strings.TrimSpace(q.Get("search")),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Order:    strings.ToLower(strings.TrimSpace(q.Get("order"))),
		MinPrice: fields.decimal(q, "min_price"),
		MaxPrice: fields.decimal(q, "max_price"),
		Params:   params,
	}
	return filter, fields.err()
}

// parseSearchParams builds an index query from the query string. The term
// is read from q, falling back to search.
func parseSearchParams(q url.Values) (domain.SearchParams, error) {
	params, err := parsePagination(q)
	if err != nil {
		return domain.SearchParams{}, err
	}

	term := strings.TrimSpace(q.Get("q"))
	if term == "" {
		term = strings.TrimSpace(q.Get("search"))
	}

	fields := priceFields{}
	sp := domain.SearchParams{
		Term:     term,
		Category: strings.TrimSpace(q.Get("category")),
		Status:   domain.Status(strings.TrimSpace(q.Get("status"))),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Order:    strings.ToLower(strings.TrimSpace(q.Get("order"))),
		MinPrice: fields.float(q, "min_price"),
		MaxPrice: fields.float(q, "max_price"),
		Params:   params,
	}
	return sp, fields.err()
}
