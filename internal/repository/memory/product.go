// Package memory provides an in-process ProductRepository for tests and
// local development.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
)

// ProductRepository keeps products in a map guarded by a mutex. SKU
// uniqueness is enforced on every write, like the database constraint.
type ProductRepository struct {
	mu     sync.RWMutex
	rows   map[int64]domain.Product
	nextID int64
	now    func() time.Time
}

// NewProductRepository creates an empty repository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		rows: make(map[int64]domain.Product),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func notFound(id int64) error {
	return apperrors.NotFound("product", strconv.FormatInt(id, 10))
}

func clone(p domain.Product) *domain.Product {
	if p.ImageURL != nil {
		url := *p.ImageURL
		p.ImageURL = &url
	}
	if p.DeletedAt != nil {
		at := *p.DeletedAt
		p.DeletedAt = &at
	}
	return &p
}

// skuTaken must be called with mu held.
func (r *ProductRepository) skuTaken(sku string, except int64) bool {
	for id, row := range r.rows {
		if id != except && row.SKU == sku {
			return true
		}
	}
	return false
}

func (r *ProductRepository) FindByID(_ context.Context, id int64, withTrashed bool) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok || (row.DeletedAt != nil && !withTrashed) {
		return nil, notFound(id)
	}
	return clone(row), nil
}

func (r *ProductRepository) FindBySKU(_ context.Context, sku string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.rows {
		if row.SKU == sku {
			return clone(row), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *ProductRepository) Insert(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.skuTaken(p.SKU, 0) {
		return apperrors.Conflict("product", "sku", p.SKU)
	}
	r.nextID++
	now := r.now()
	p.ID = r.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	p.DeletedAt = nil
	r.rows[p.ID] = *clone(*p)
	return nil
}

func (r *ProductRepository) Update(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[p.ID]
	if !ok || row.DeletedAt != nil {
		return notFound(p.ID)
	}
	if r.skuTaken(p.SKU, p.ID) {
		return apperrors.Conflict("product", "sku", p.SKU)
	}
	p.CreatedAt = row.CreatedAt
	p.UpdatedAt = r.now()
	p.DeletedAt = nil
	r.rows[p.ID] = *clone(*p)
	return nil
}

func (r *ProductRepository) SoftDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.DeletedAt != nil {
		return notFound(id)
	}
	now := r.now()
	row.DeletedAt = &now
	row.UpdatedAt = now
	r.rows[id] = row
	return nil
}

func (r *ProductRepository) Restore(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.DeletedAt == nil {
		return notFound(id)
	}
	row.DeletedAt = nil
	row.UpdatedAt = r.now()
	r.rows[id] = row
	return nil
}

func (r *ProductRepository) ForceDelete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return notFound(id)
	}
	delete(r.rows, id)
	return nil
}

func (r *ProductRepository) List(_ context.Context, filter domain.ListFilter) ([]domain.Product, int, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := make([]domain.Product, 0, len(r.rows))
	for _, row := range r.rows {
		if row.DeletedAt == nil && matches(row, filter) {
			matched = append(matched, *clone(row))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Product) int {
		c := compareBy(a, b, filter.Sort)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if filter.Order == domain.OrderAsc {
			return c
		}
		return -c
	})

	total := len(matched)
	start := min(max(filter.Offset(), 0), total)
	end := min(start+filter.PerPage, total)
	return matched[start:end], total, nil
}

func (r *ProductRepository) Batch(_ context.Context, afterID int64, limit int, withTrashed bool) ([]domain.Product, error) {
	r.mu.RLock()
	var out []domain.Product
	for id, row := range r.rows {
		if id > afterID && (withTrashed || row.DeletedAt == nil) {
			out = append(out, *clone(row))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored rows, soft-deleted ones included.
func (r *ProductRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func matches(p domain.Product, f domain.ListFilter) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) &&
			!strings.Contains(strings.ToLower(p.SKU), term) {
			return false
		}
	}
	return true
}

func compareBy(a, b domain.Product, field string) int {
	switch field {
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "name":
		return cmp.Compare(a.Name, b.Name)
	case "price":
		return a.Price.Cmp(b.Price)
	case "sku":
		return cmp.Compare(a.SKU, b.SKU)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
