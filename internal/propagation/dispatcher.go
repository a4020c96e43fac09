package propagation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

// ProductReader reads the current row for a product.
type ProductReader interface {
	FindByID(ctx context.Context, id int64, withTrashed bool) (*domain.Product, error)
}

// Indexer writes to the search index.
type Indexer interface {
	Upsert(ctx context.Context, p *domain.Product) error
	Remove(ctx context.Context, id int64) error
}

// Dispatcher executes tasks against the index. It acts on the product's
// current state in the store rather than on the task kind, so replays and
// out-of-order deliveries converge on the same index contents.
type Dispatcher struct {
	products ProductReader
	index    Indexer
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(products ProductReader, index Indexer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{products: products, index: index, logger: logger}
}

// Dispatch runs one attempt of task. A returned error means the task should
// be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) error {
	p, err := d.products.FindByID(ctx, task.ProductID, true)
	switch {
	case apperrors.IsNotFound(err):
		return d.remove(ctx, task, "gone")
	case err != nil:
		return fmt.Errorf("read product %d: %w", task.ProductID, err)
	case p.Trashed():
		return d.remove(ctx, task, "trashed")
	}

	if task.Kind == KindRemove {
		logger.WithContext(ctx, d.logger).DebugContext(ctx, "remove task for live product, upserting instead",
			slog.String("task_id", task.ID.String()),
			slog.Int64("product_id", task.ProductID),
		)
	}
	return d.index.Upsert(ctx, p)
}

// Handler returns Dispatch as a Handler.
func (d *Dispatcher) Handler() Handler {
	return d.Dispatch
}

func (d *Dispatcher) remove(ctx context.Context, task Task, state string) error {
	if task.Kind == KindUpsert {
		logger.WithContext(ctx, d.logger).DebugContext(ctx, "upsert task for non-live product, removing instead",
			slog.String("task_id", task.ID.String()),
			slog.Int64("product_id", task.ProductID),
			slog.String("state", state),
		)
	}
	return d.index.Remove(ctx, task.ProductID)
}
