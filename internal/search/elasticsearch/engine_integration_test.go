package elasticsearch_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/internal/search"
	esengine "github.com/utafrali/catalog/internal/search/elasticsearch"
	"github.com/utafrali/catalog/pkg/pagination"
)

// newIntegrationEngine skips the test unless ELASTICSEARCH_URL is set.
func newIntegrationEngine(t *testing.T) *esengine.Engine {
	t.Helper()

	esURL := os.Getenv("ELASTICSEARCH_URL")
	if esURL == "" {
		t.Skip("ELASTICSEARCH_URL not set, skipping Elasticsearch integration tests")
	}

	eng, err := esengine.New(esengine.Config{
		Addresses: []string{esURL},
		Index:     fmt.Sprintf("test_products_%d", time.Now().UnixNano()),
		Refresh:   "true",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, eng.EnsureIndex(context.Background()))

	t.Cleanup(func() {
		_ = eng.DeleteIndex(context.Background())
	})
	return eng
}

func doc(id int64, name, category string, price float64) search.Document {
	now := time.Now().UTC().Format(time.RFC3339)
	return search.Document{
		ID:          id,
		SKU:         fmt.Sprintf("SKU-%d", id),
		Name:        name,
		Description: name + " description",
		Price:       price,
		Category:    category,
		Status:      string(domain.StatusActive),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestIntegration_UpsertQueryRemove(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Upsert(ctx, doc(1, "Oak Chair", "furniture", 120)))
	require.NoError(t, eng.Upsert(ctx, doc(2, "Steel Hammer", "tools", 25)))

	params := domain.SearchParams{Term: "chair", Params: pagination.DefaultParams()}.Normalize()
	docs, total, err := eng.Query(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(1), docs[0].ID)

	require.NoError(t, eng.Remove(ctx, 1))
	require.NoError(t, eng.Remove(ctx, 1), "removing twice is a no-op")

	_, total, err = eng.Query(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestIntegration_BulkUpsertAndFilters(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.BulkUpsert(ctx, []search.Document{
		doc(1, "Oak Chair", "furniture", 120),
		doc(2, "Pine Table", "furniture", 300),
		doc(3, "Steel Hammer", "tools", 25),
	}))

	lo := 100.0
	docs, total, err := eng.Query(ctx, domain.SearchParams{
		Category: "Furniture",
		MinPrice: &lo,
		Sort:     "price",
		Order:    domain.OrderAsc,
	}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, docs, 2)
	assert.Equal(t, "Oak Chair", docs[0].Name)
}

func TestIntegration_UpsertTwiceKeepsOneDocument(t *testing.T) {
	eng := newIntegrationEngine(t)
	ctx := context.Background()
	d := doc(4, "Brass Lamp", "lighting", 60)

	require.NoError(t, eng.Upsert(ctx, d))
	require.NoError(t, eng.Upsert(ctx, d))

	docs, total, err := eng.Query(ctx, domain.SearchParams{Term: "lamp"}.Normalize())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, d, docs[0])
}
