package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/internal/search"
	"github.com/utafrali/catalog/pkg/pagination"
)

func seed(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.BulkUpsert(context.Background(), []search.Document{
		{ID: 1, Name: "Oak Chair", Description: "solid wood", Price: 120, Category: "furniture", Status: "active", CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: 2, Name: "Pine Table", Description: "seats six", Price: 300, Category: "furniture", Status: "inactive", CreatedAt: "2024-01-02T00:00:00Z"},
		{ID: 3, Name: "Steel Hammer", Description: "claw hammer", Price: 25, Category: "tools", Status: "active", CreatedAt: "2024-01-03T00:00:00Z"},
	}))
}

func query(p domain.SearchParams) domain.SearchParams {
	return p.Normalize()
}

func TestQuery_TermMatchesAnyWord(t *testing.T) {
	e := New()
	seed(t, e)

	docs, total, err := e.Query(context.Background(), query(domain.SearchParams{Term: "CHAIR hammer"}))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, int64(3), docs[0].ID, "newest first by default")
	assert.Equal(t, int64(1), docs[1].ID)
}

func TestQuery_Filters(t *testing.T) {
	e := New()
	seed(t, e)

	lo := 100.0
	docs, total, err := e.Query(context.Background(), query(domain.SearchParams{
		Category: "Furniture",
		Status:   domain.StatusActive,
		MinPrice: &lo,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(1), docs[0].ID)
}

func TestQuery_SortAndPaginate(t *testing.T) {
	e := New()
	seed(t, e)

	docs, total, err := e.Query(context.Background(), query(domain.SearchParams{
		Sort:   "price",
		Order:  domain.OrderAsc,
		Params: pagination.Params{Page: 2, PerPage: 2},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(2), docs[0].ID)
}

func TestQuery_PageBeyondEnd(t *testing.T) {
	e := New()
	seed(t, e)

	docs, total, err := e.Query(context.Background(), query(domain.SearchParams{Params: pagination.Params{Page: 9}}))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, docs)
}

func TestRemove_MissingIsNoop(t *testing.T) {
	e := New()
	seed(t, e)

	require.NoError(t, e.Remove(context.Background(), 1))
	require.NoError(t, e.Remove(context.Background(), 1))
	_, ok := e.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 2, e.Len())
}

func TestFault_AbortsSelectedOperation(t *testing.T) {
	e := New()
	boom := errors.New("cluster unavailable")
	e.SetFault(func(_ context.Context, op Op) error {
		if op == OpUpsert {
			return boom
		}
		return nil
	})

	err := e.Upsert(context.Background(), search.Document{ID: 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, e.Len())

	require.NoError(t, e.Remove(context.Background(), 1))

	e.SetFault(nil)
	require.NoError(t, e.Upsert(context.Background(), search.Document{ID: 1}))
	assert.Equal(t, 1, e.Len())
}
