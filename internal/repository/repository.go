package repository

import (
	"context"

	"github.com/utafrali/catalog/internal/domain"
)

// ProductRepository is the authoritative store for products. Lookups that
// find nothing return an error matching apperrors.ErrNotFound; SKU collisions
// return an error matching apperrors.ErrConflict.
type ProductRepository interface {
	// FindByID returns a live product, or any product when withTrashed is set.
	FindByID(ctx context.Context, id int64, withTrashed bool) (*domain.Product, error)

	// FindBySKU looks the SKU up across all rows, soft-deleted ones included.
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)

	// Insert stores p and fills in its ID and timestamps.
	Insert(ctx context.Context, p *domain.Product) error

	// Update writes every mutable field of a live product and refreshes UpdatedAt.
	Update(ctx context.Context, p *domain.Product) error

	// SoftDelete marks a live product deleted.
	SoftDelete(ctx context.Context, id int64) error

	// Restore clears the deletion mark of a soft-deleted product.
	Restore(ctx context.Context, id int64) error

	// ForceDelete removes a product row permanently.
	ForceDelete(ctx context.Context, id int64) error

	// List returns one page of live products and the total match count.
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, int, error)

	// Batch returns up to limit products with ID greater than afterID, in ID order.
	Batch(ctx context.Context, afterID int64, limit int, withTrashed bool) ([]domain.Product, error)
}
