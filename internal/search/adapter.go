package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/pkg/breaker"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

// Config tunes the adapter.
type Config struct {
	QueryTimeout   time.Duration
	BatchSize      int
	IncludeDeleted bool
}

// DefaultConfig returns a 2s query timeout and 500-row rebuild batches that
// skip soft-deleted products.
func DefaultConfig() Config {
	return Config{
		QueryTimeout: 2 * time.Second,
		BatchSize:    500,
	}
}

// Source feeds RebuildAll from the record store.
type Source interface {
	Batch(ctx context.Context, afterID int64, limit int, withTrashed bool) ([]domain.Product, error)
}

// Breakers guards the index. Queries and writes trip independently, so a
// query outage never rejects index writes.
type Breakers struct {
	Query *breaker.Breaker
	Write *breaker.Breaker
}

// Adapter keeps the search index in step with the record store. Writes go
// through a circuit breaker and report failures for the caller to retry;
// queries degrade to an empty page instead of failing.
type Adapter struct {
	engine   Engine
	breakers Breakers
	cfg      Config
	logger   *slog.Logger
}

// NewAdapter wraps engine. Zero config fields and nil breakers take their
// defaults.
func NewAdapter(engine Engine, cfg Config, breakers Breakers, logger *slog.Logger) *Adapter {
	def := DefaultConfig()
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if breakers.Query == nil {
		breakers.Query = breaker.New(breaker.DefaultConfig("search-query"), logger, nil)
	}
	if breakers.Write == nil {
		breakers.Write = breaker.New(breaker.DefaultConfig("search-index"), logger, nil)
	}
	return &Adapter{engine: engine, breakers: breakers, cfg: cfg, logger: logger}
}

// EnsureIndexExists creates the index if needed. It is safe to call repeatedly.
func (a *Adapter) EnsureIndexExists(ctx context.Context) error {
	if err := a.engine.EnsureIndex(ctx); err != nil {
		return apperrors.Dependency("ensure search index", err)
	}
	return nil
}

// RecreateIndex drops the index and creates it again with the current
// mapping. Every document is lost until the next rebuild.
func (a *Adapter) RecreateIndex(ctx context.Context) error {
	if err := a.engine.DeleteIndex(ctx); err != nil {
		return apperrors.Dependency("delete search index", err)
	}
	a.logger.WarnContext(ctx, "search index dropped, rebuild required")
	return a.EnsureIndexExists(ctx)
}

// Upsert indexes the full projection of p.
func (a *Adapter) Upsert(ctx context.Context, p *domain.Product) error {
	err := a.breakers.Write.Do(ctx, func(ctx context.Context) error {
		return a.engine.Upsert(ctx, NewDocument(p))
	})
	if err != nil {
		logger.WithContext(ctx, a.logger).ErrorContext(ctx, "search index upsert failed",
			slog.Int64("product_id", p.ID),
			slog.String("operation", "upsert"),
			slog.String("error", err.Error()),
		)
		return apperrors.Dependency("search index upsert", err)
	}
	return nil
}

// Remove deletes the document for id. A missing document is not an error.
func (a *Adapter) Remove(ctx context.Context, id int64) error {
	err := a.breakers.Write.Do(ctx, func(ctx context.Context) error {
		return a.engine.Remove(ctx, id)
	})
	if err != nil {
		logger.WithContext(ctx, a.logger).ErrorContext(ctx, "search index remove failed",
			slog.Int64("product_id", id),
			slog.String("operation", "remove"),
			slog.String("error", err.Error()),
		)
		return apperrors.Dependency("search index remove", err)
	}
	return nil
}

// Query runs a search bounded by the query timeout. Any failure yields an
// empty, degraded page with LastPage 0.
func (a *Adapter) Query(ctx context.Context, params domain.SearchParams) Result {
	params = params.Normalize()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	var (
		docs  []Document
		total int
	)
	err := a.breakers.Query.Do(ctx, func(ctx context.Context) error {
		var err error
		docs, total, err = a.engine.Query(ctx, params)
		return err
	})
	if err != nil {
		logger.WithContext(ctx, a.logger).ErrorContext(ctx, "search query failed, returning empty page",
			slog.String("term", params.Term),
			slog.Int("page", params.Page),
			slog.String("error", err.Error()),
		)
		return emptyResult(params)
	}
	return newResult(docs, total, params)
}

// RebuildAll reindexes every product from src in ID-ordered batches and
// returns how many documents were written.
func (a *Adapter) RebuildAll(ctx context.Context, src Source) (int, error) {
	var (
		afterID int64
		count   int
	)
	for {
		batch, err := src.Batch(ctx, afterID, a.cfg.BatchSize, a.cfg.IncludeDeleted)
		if err != nil {
			return count, fmt.Errorf("read batch after %d: %w", afterID, err)
		}
		if len(batch) == 0 {
			break
		}

		docs := make([]Document, len(batch))
		for i := range batch {
			docs[i] = NewDocument(&batch[i])
		}
		if err := a.breakers.Write.Do(ctx, func(ctx context.Context) error {
			return a.engine.BulkUpsert(ctx, docs)
		}); err != nil {
			return count, apperrors.Dependency("search index bulk upsert", err)
		}

		count += len(docs)
		afterID = batch[len(batch)-1].ID
		a.logger.InfoContext(ctx, "reindexed batch",
			slog.Int("batch_size", len(docs)),
			slog.Int("indexed", count),
			slog.Int64("last_id", afterID),
		)
		if len(batch) < a.cfg.BatchSize {
			break
		}
	}
	return count, nil
}

// Ping reports whether the index backend is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.engine.Ping(ctx)
}
