package propagation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

// Task outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRetry    = "retry"
	OutcomeDead     = "dead"
	OutcomeDeferred = "deferred"
)

var tasksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_propagation_tasks_total",
		Help: "Propagation task attempts by kind and outcome",
	},
	[]string{"kind", "outcome"},
)

// Observe counts one task outcome.
func Observe(kind Kind, outcome string) {
	tasksTotal.WithLabelValues(string(kind), outcome).Inc()
}

// LogDeadLetter records a task that will not be retried again and returns
// the failure as a task error.
func LogDeadLetter(ctx context.Context, l *slog.Logger, task Task, attempts int, err error) error {
	Observe(task.Kind, OutcomeDead)
	taskErr := apperrors.TaskFailure(fmt.Sprintf("%s product %d", task.Kind, task.ProductID), err)
	logger.WithContext(ctx, l).ErrorContext(ctx, "propagation task dead-lettered",
		slog.String("task_id", task.ID.String()),
		slog.Int64("product_id", task.ProductID),
		slog.String("kind", string(task.Kind)),
		slog.Int("attempts", attempts),
		slog.String("error", taskErr.Error()),
	)
	return taskErr
}
