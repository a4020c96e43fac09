package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/pagination"
)

func newRepo() *ProductRepository {
	r := NewProductRepository()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func insert(t *testing.T, r *ProductRepository, sku, name, price, category string) *domain.Product {
	t.Helper()
	p := &domain.Product{
		SKU:      sku,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: category,
		Status:   domain.StatusActive,
	}
	require.NoError(t, r.Insert(context.Background(), p))
	return p
}

func TestInsert_AssignsIDAndRejectsDuplicateSKU(t *testing.T) {
	r := newRepo()
	p := insert(t, r, "A1", "Widget", "10", "Tools")
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	dup := &domain.Product{SKU: "A1", Name: "Other"}
	err := r.Insert(context.Background(), dup)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 1, r.Len())
}

func TestSKUUniqueAcrossSoftDeleted(t *testing.T) {
	r := newRepo()
	p := insert(t, r, "A1", "Widget", "10", "Tools")
	require.NoError(t, r.SoftDelete(context.Background(), p.ID))

	found, err := r.FindBySKU(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, found.Trashed())

	err = r.Insert(context.Background(), &domain.Product{SKU: "A1", Name: "Again"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSoftDeleteRestoreForceDelete(t *testing.T) {
	ctx := context.Background()
	r := newRepo()
	p := insert(t, r, "A1", "Widget", "10", "Tools")

	require.NoError(t, r.SoftDelete(ctx, p.ID))
	_, err := r.FindByID(ctx, p.ID, false)
	assert.True(t, apperrors.IsNotFound(err))
	got, err := r.FindByID(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Trashed())

	assert.True(t, apperrors.IsNotFound(r.SoftDelete(ctx, p.ID)))
	assert.True(t, apperrors.IsNotFound(r.Update(ctx, got)))

	require.NoError(t, r.Restore(ctx, p.ID))
	assert.True(t, apperrors.IsNotFound(r.Restore(ctx, p.ID)))
	_, err = r.FindByID(ctx, p.ID, false)
	require.NoError(t, err)

	require.NoError(t, r.ForceDelete(ctx, p.ID))
	_, err = r.FindByID(ctx, p.ID, true)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(r.ForceDelete(ctx, p.ID)))
}

func TestUpdate_ReturnsCopiesAndChecksSKU(t *testing.T) {
	ctx := context.Background()
	r := newRepo()
	a := insert(t, r, "A1", "Widget", "10", "Tools")
	insert(t, r, "B2", "Gadget", "20", "Tools")

	got, err := r.FindByID(ctx, a.ID, false)
	require.NoError(t, err)
	got.Name = "Changed"

	again, _ := r.FindByID(ctx, a.ID, false)
	assert.Equal(t, "Widget", again.Name)

	got.SKU = "B2"
	assert.ErrorIs(t, r.Update(ctx, got), apperrors.ErrConflict)

	got.SKU = "A1"
	require.NoError(t, r.Update(ctx, got))
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestList_FiltersSortsPaginates(t *testing.T) {
	ctx := context.Background()
	r := newRepo()
	insert(t, r, "A1", "Widget", "10", "Tools")
	insert(t, r, "B2", "Gadget", "20", "Tools")
	insert(t, r, "C3", "Sprocket", "5", "Parts")
	gone := insert(t, r, "D4", "Gizmo", "12", "Tools")
	require.NoError(t, r.SoftDelete(ctx, gone.ID))

	all, total, err := r.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "C3", all[0].SKU, "newest first by default")

	minPrice := decimal.RequireFromString("5")
	maxPrice := decimal.RequireFromString("15")
	page, total, err := r.List(ctx, domain.ListFilter{MinPrice: &minPrice, MaxPrice: &maxPrice, Sort: "price", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"C3", "A1"}, []string{page[0].SKU, page[1].SKU})

	page, total, err = r.List(ctx, domain.ListFilter{Category: "Tools", Sort: "name", Order: "asc", Params: pagination.Params{Page: 2, PerPage: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Widget", page[0].Name)

	page, _, err = r.List(ctx, domain.ListFilter{Search: "b2"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Gadget", page[0].Name)

	page, total, err = r.List(ctx, domain.ListFilter{Params: pagination.Params{Page: 9}})
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 3, total)
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	r := newRepo()
	for _, sku := range []string{"A", "B", "C"} {
		insert(t, r, sku, "Name "+sku, "1", "Tools")
	}
	require.NoError(t, r.SoftDelete(ctx, 2))

	live, err := r.Batch(ctx, 0, 10, false)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	withTrashed, err := r.Batch(ctx, 0, 2, true)
	require.NoError(t, err)
	require.Len(t, withTrashed, 2)
	assert.Equal(t, int64(2), withTrashed[1].ID)

	rest, err := r.Batch(ctx, 2, 10, true)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0].ID)
}
