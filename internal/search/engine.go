package search

import (
	"context"

	"github.com/utafrali/catalog/internal/domain"
)

// Engine is a document index backend.
type Engine interface {
	// EnsureIndex creates the index with its mapping unless it already exists.
	EnsureIndex(ctx context.Context) error

	// DeleteIndex drops the index and its documents. A missing index is not
	// an error.
	DeleteIndex(ctx context.Context) error

	// Upsert writes doc, replacing any document with the same ID.
	Upsert(ctx context.Context, doc Document) error

	// BulkUpsert writes many documents in one request.
	BulkUpsert(ctx context.Context, docs []Document) error

	// Remove deletes a document. Removing a missing document is not an error.
	Remove(ctx context.Context, id int64) error

	// Query returns one page of matching documents and the total hit count.
	// params has already been normalized.
	Query(ctx context.Context, params domain.SearchParams) ([]Document, int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
