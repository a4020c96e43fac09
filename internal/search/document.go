package search

import (
	"strings"
	"time"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/pkg/pagination"
)

// Document is the denormalized projection of a product held by the index.
type Document struct {
	ID          int64   `json:"id"`
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	ImageURL    *string `json:"image_url"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// NewDocument projects p. Category is lowercased so term filters match
// regardless of the case it was stored in.
func NewDocument(p *domain.Product) Document {
	price, _ := p.Price.Float64()
	return Document{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Category:    strings.ToLower(p.Category),
		Status:      string(p.Status),
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Result is one page of search hits. Degraded marks the empty page returned
// when the index could not be queried.
type Result struct {
	pagination.Result[Document]
	Degraded bool `json:"-"`
}

func newResult(docs []Document, total int, params domain.SearchParams) Result {
	return Result{Result: pagination.NewResult(docs, total, params.Params)}
}

func emptyResult(params domain.SearchParams) Result {
	r := newResult(nil, 0, params)
	r.Degraded = true
	return r
}
