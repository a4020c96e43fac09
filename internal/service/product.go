package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalog/internal/cache"
	"github.com/utafrali/catalog/internal/domain"
	"github.com/utafrali/catalog/internal/propagation"
	"github.com/utafrali/catalog/internal/repository"
	"github.com/utafrali/catalog/internal/search"
	"github.com/utafrali/catalog/internal/storage"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
	"github.com/utafrali/catalog/pkg/pagination"
	"github.com/utafrali/catalog/pkg/validator"
)

// SearchIndex is the part of the search adapter the service uses.
type SearchIndex interface {
	Query(ctx context.Context, params domain.SearchParams) search.Result
	RebuildAll(ctx context.Context, src search.Source) (int, error)
}

// ProductService orders every mutation as store write, then cache
// invalidation, then index task enqueue. Only the store write can fail the
// operation.
type ProductService struct {
	repo   repository.ProductRepository
	cache  *cache.ReadThrough
	index  SearchIndex
	queue  propagation.Queue
	images storage.Store
	logger *slog.Logger
}

// NewProductService creates a new product service.
func NewProductService(
	repo repository.ProductRepository,
	c *cache.ReadThrough,
	index SearchIndex,
	queue propagation.Queue,
	images storage.Store,
	logger *slog.Logger,
) *ProductService {
	return &ProductService{
		repo:   repo,
		cache:  c,
		index:  index,
		queue:  queue,
		images: images,
		logger: logger,
	}
}

// Create inserts a new product.
func (s *ProductService) Create(ctx context.Context, actor domain.Actor, input domain.CreateProductInput) (*domain.Product, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	if err := s.ensureSKUFree(ctx, input.SKU); err != nil {
		return nil, err
	}

	product := domain.NewProduct(input)
	if err := s.repo.Insert(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.afterWrite(ctx, product.ID, propagation.KindUpsert)
	s.audit(ctx, actor, "product created", product.ID, slog.String("sku", product.SKU))
	return product, nil
}

// Update applies patch to a live product.
func (s *ProductService) Update(ctx context.Context, actor domain.Actor, id int64, patch domain.ProductPatch) (*domain.Product, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}

	product, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if patch.Empty() {
		return product, nil
	}
	if patch.SKU != nil && *patch.SKU != product.SKU {
		if err := s.ensureSKUFree(ctx, *patch.SKU); err != nil {
			return nil, err
		}
	}

	patch.Apply(product)
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.afterWrite(ctx, id, propagation.KindUpsert)
	s.audit(ctx, actor, "product updated", id, slog.Any("changed_fields", patch.ChangedFields()))
	return product, nil
}

// Delete soft-deletes a live product.
func (s *ProductService) Delete(ctx context.Context, actor domain.Actor, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.afterWrite(ctx, id, propagation.KindRemove)
	s.audit(ctx, actor, "product deleted", id)
	return nil
}

// Restore brings back a soft-deleted product.
func (s *ProductService) Restore(ctx context.Context, actor domain.Actor, id int64) (*domain.Product, error) {
	if err := s.repo.Restore(ctx, id); err != nil {
		return nil, fmt.Errorf("restore product: %w", err)
	}

	s.afterWrite(ctx, id, propagation.KindUpsert)
	s.audit(ctx, actor, "product restored", id)

	product, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("get restored product: %w", err)
	}
	return product, nil
}

// Destroy permanently removes a product, live or soft-deleted, along with
// its stored image.
func (s *ProductService) Destroy(ctx context.Context, actor domain.Actor, id int64) error {
	product, err := s.repo.FindByID(ctx, id, true)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if err := s.repo.ForceDelete(ctx, id); err != nil {
		return fmt.Errorf("destroy product: %w", err)
	}

	s.afterWrite(ctx, id, propagation.KindRemove)
	if product.ImageURL != nil {
		s.deleteImage(ctx, id, *product.ImageURL)
	}
	s.audit(ctx, actor, "product destroyed", id)
	return nil
}

// Get returns a live product, read through the cache.
func (s *ProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := cache.Fetch(ctx, s.cache, cache.ProductKey(id), s.cache.TTL(), func(ctx context.Context) (*domain.Product, error) {
		return s.repo.FindByID(ctx, id, false)
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

// List returns a page of live products. Pages past the cache depth threshold
// are always read from the store.
func (s *ProductService) List(ctx context.Context, filter domain.ListFilter) (pagination.Result[domain.Product], error) {
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return pagination.Result[domain.Product]{}, err
	}

	load := func(ctx context.Context) (pagination.Result[domain.Product], error) {
		products, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return pagination.Result[domain.Product]{}, fmt.Errorf("list products: %w", err)
		}
		return pagination.NewResult(products, total, filter.Params), nil
	}

	if s.cache.Bypass(filter.Page) {
		return load(ctx)
	}
	key := cache.QueryKey(cache.KindList, filter.CacheParams(), filter.PerPage)
	return cache.Fetch(ctx, s.cache, key, s.cache.TTL(), load)
}

// Search queries the index. It never fails on index errors; a degraded empty
// page is returned instead and is not cached.
func (s *ProductService) Search(ctx context.Context, params domain.SearchParams) (search.Result, error) {
	params = params.Normalize()
	if err := params.Validate(); err != nil {
		return search.Result{}, err
	}

	if s.cache.Bypass(params.Page) {
		return s.index.Query(ctx, params), nil
	}

	var out search.Result
	key := cache.QueryKey(cache.KindSearch, params.CacheParams(), params.PerPage)
	err := s.cache.GetOrCompute(ctx, key, s.cache.TTL(), func(ctx context.Context) (any, error) {
		res := s.index.Query(ctx, params)
		if res.Degraded {
			return cache.NoStore(res), nil
		}
		return res, nil
	}, &out)
	if err != nil {
		return search.Result{}, fmt.Errorf("search products: %w", err)
	}
	return out, nil
}

// Reindex rebuilds the whole index from the store and returns the number of
// documents written.
func (s *ProductService) Reindex(ctx context.Context, actor domain.Actor) (int, error) {
	n, err := s.index.RebuildAll(ctx, s.repo)
	if err != nil {
		return n, fmt.Errorf("reindex: %w", err)
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.dependencyFailed(ctx, "cache invalidate all", 0, err)
	}
	s.audit(ctx, actor, "search index rebuilt", 0, slog.Int("indexed", n))
	return n, nil
}

func (s *ProductService) ensureSKUFree(ctx context.Context, sku string) error {
	_, err := s.repo.FindBySKU(ctx, sku)
	switch {
	case err == nil:
		return apperrors.Conflict("product", "sku", sku)
	case apperrors.IsNotFound(err):
		return nil
	default:
		return fmt.Errorf("check sku: %w", err)
	}
}

// afterWrite runs the post-commit side effects. Failures are logged and
// never reach the caller: cached entries expire by TTL and index tasks are
// retried by the queue.
func (s *ProductService) afterWrite(ctx context.Context, id int64, kind propagation.Kind) {
	if err := s.cache.Invalidate(ctx, cache.ProductKey(id)); err != nil {
		s.dependencyFailed(ctx, "cache invalidate", id, err)
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.dependencyFailed(ctx, "cache invalidate all", id, err)
	}

	task := propagation.NewTask(kind, id)
	task.CorrelationID = logger.CorrelationIDFromContext(ctx)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.dependencyFailed(ctx, "enqueue index "+string(kind), id, err)
	}
}

func (s *ProductService) dependencyFailed(ctx context.Context, op string, id int64, err error) {
	depErr := apperrors.Dependency(op, err)
	attrs := []any{
		slog.String("operation", op),
		slog.String("kind", apperrors.KindOf(depErr).String()),
		slog.String("error", err.Error()),
	}
	if id != 0 {
		attrs = append(attrs, slog.Int64("product_id", id))
	}
	logger.WithContext(ctx, s.logger).ErrorContext(ctx, depErr.Message+" failed", attrs...)
}

func (s *ProductService) audit(ctx context.Context, actor domain.Actor, msg string, id int64, extra ...any) {
	attrs := []any{
		slog.Group("actor",
			slog.String("user_id", actor.UserID),
			slog.String("client_ip", actor.ClientIP),
		),
	}
	if id != 0 {
		attrs = append(attrs, slog.Int64("product_id", id))
	}
	attrs = append(attrs, extra...)
	logger.WithContext(ctx, s.logger).InfoContext(ctx, msg, attrs...)
}

func validate(v any) error {
	err := validator.Validate(v)
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.AppError()
	}
	return err
}
