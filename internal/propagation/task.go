// Package propagation carries index synchronization work from committed
// store writes to the search index.
package propagation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalog/pkg/breaker"
	pkgkafka "github.com/utafrali/catalog/pkg/kafka"
	"github.com/utafrali/catalog/pkg/logger"
)

// Kind is the requested index operation.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindRemove Kind = "remove"
)

// EventTypePrefix prefixes Kind to form the broker event type.
const EventTypePrefix = "catalog.product."

// ErrQueueClosed is returned by Enqueue once a queue has been stopped.
var ErrQueueClosed = errors.New("propagation queue closed")

// Task asks for product ProductID to be brought in line with the store.
type Task struct {
	ID            uuid.UUID `json:"id"`
	Kind          Kind      `json:"kind"`
	ProductID     int64     `json:"product_id"`
	Attempt       int       `json:"attempt"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewTask creates a task with a fresh id.
func NewTask(kind Kind, productID int64) Task {
	return Task{
		ID:         uuid.New(),
		Kind:       kind,
		ProductID:  productID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// EventType returns the broker event type for the task.
func (t Task) EventType() string {
	return EventTypePrefix + string(t.Kind)
}

// Queue accepts tasks for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

// Handler executes one attempt of a task.
type Handler func(ctx context.Context, task Task) error

// RetryPolicy bounds the attempts made for one task. Both queue backends
// share the consumer's policy type.
type RetryPolicy = pkgkafka.RetryPolicy

// DefaultRetryPolicy allows three attempts starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return pkgkafka.DefaultRetryPolicy()
}

// DefaultDeferDelay is how long a deferred task waits before trying again.
const DefaultDeferDelay = time.Second

// Deferred reports whether err means the index refused the call without
// attempting it because its breaker is open or half-open and full.
func Deferred(err error) bool {
	return errors.Is(err, breaker.ErrOpen) || errors.Is(err, breaker.ErrTooManyRequests)
}

// WithDeferral wraps h so that calls refused by the index breaker are repeated
// every delay until they run. Refusals do not count as attempts. If ctx ends
// while waiting, ctx.Err() is returned.
func WithDeferral(h Handler, delay time.Duration, l *slog.Logger) Handler {
	if delay <= 0 {
		delay = DefaultDeferDelay
	}
	return func(ctx context.Context, task Task) error {
		for waits := 0; ; waits++ {
			err := h(ctx, task)
			if !Deferred(err) {
				return err
			}
			Observe(task.Kind, OutcomeDeferred)
			if waits == 0 {
				logger.WithContext(ctx, l).WarnContext(ctx, "search index refusing writes, deferring task",
					slog.String("task_id", task.ID.String()),
					slog.Int64("product_id", task.ProductID),
					slog.String("kind", string(task.Kind)),
					slog.Duration("retry_every", delay),
				)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// DeadLetter is a task that exhausted its attempts.
type DeadLetter struct {
	Task     Task      `json:"task"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
