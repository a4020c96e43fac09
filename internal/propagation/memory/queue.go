// Package memory runs propagation tasks on an in-process worker pool.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/catalog/internal/propagation"
	"github.com/utafrali/catalog/pkg/logger"
)

// Config tunes the worker pool.
type Config struct {
	Workers        int
	Retry          propagation.RetryPolicy
	MaxDeadLetters int
	DrainTimeout   time.Duration
	// DeferDelay paces tasks the index breaker refuses; see
	// propagation.WithDeferral.
	DeferDelay time.Duration
}

// DefaultConfig returns four workers, the default retry policy, and room for
// 1000 dead letters.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		Retry:          propagation.DefaultRetryPolicy(),
		MaxDeadLetters: 1000,
		DrainTimeout:   10 * time.Second,
		DeferDelay:     propagation.DefaultDeferDelay,
	}
}

// Queue buffers tasks in an unbounded backlog that a broker goroutine feeds
// to a fixed set of workers.
type Queue struct {
	cfg     Config
	handler propagation.Handler
	logger  *slog.Logger

	// mu guards backlog and closed, so no task is accepted once Stop has
	// closed intake.
	mu      sync.Mutex
	backlog []propagation.Task
	closed  bool
	notify  chan struct{}
	out     chan propagation.Task
	pending atomic.Int64

	deadMu sync.Mutex
	dead   []propagation.DeadLetter

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ propagation.Queue = (*Queue)(nil)

// New creates a stopped queue. Zero config fields take their defaults.
func New(cfg Config, handler propagation.Handler, logger *slog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.BaseBackoff <= 0 {
		cfg.Retry.BaseBackoff = def.Retry.BaseBackoff
	}
	if cfg.MaxDeadLetters <= 0 {
		cfg.MaxDeadLetters = def.MaxDeadLetters
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = def.DeferDelay
	}
	return &Queue{
		cfg:     cfg,
		handler: propagation.WithDeferral(handler, cfg.DeferDelay, logger),
		logger:  logger,
		notify:  make(chan struct{}, 1),
		out:     make(chan propagation.Task, cfg.Workers),
	}
}

// Start launches the broker and the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, q.cancel = context.WithCancel(ctx)
		q.wg.Add(1 + q.cfg.Workers)
		go q.broker(ctx)
		for range q.cfg.Workers {
			go q.worker(ctx)
		}
		q.logger.Info("propagation workers started", slog.Int("workers", q.cfg.Workers))
	})
}

// Enqueue adds task to the backlog. It never blocks on the workers.
func (q *Queue) Enqueue(ctx context.Context, task propagation.Task) error {
	if task.CorrelationID == "" {
		task.CorrelationID = logger.CorrelationIDFromContext(ctx)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return propagation.ErrQueueClosed
	}
	q.pending.Add(1)
	q.backlog = append(q.backlog, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of tasks enqueued but not yet finished.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Drain blocks until every enqueued task has finished or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain propagation queue: %d tasks pending: %w", q.pending.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop rejects new tasks, waits up to the drain timeout for queued ones, and
// stops the workers. Calling Stop on a queue that was never started only
// closes intake.
func (q *Queue) Stop() error {
	var err error
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		if q.cancel == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.DrainTimeout)
		err = q.Drain(ctx)
		cancel()

		q.cancel()
		q.wg.Wait()
		q.logger.Info("propagation workers stopped", slog.Int("pending", q.Pending()))
	})
	return err
}

// DeadLetters returns a copy of the retained dead letters, oldest first.
func (q *Queue) DeadLetters() []propagation.DeadLetter {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	out := make([]propagation.DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *Queue) broker(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		var next propagation.Task
		ok := len(q.backlog) > 0
		if ok {
			next = q.backlog[0]
			q.backlog = q.backlog[1:]
		}
		q.mu.Unlock()

		if ok {
			select {
			case q.out <- next:
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		}
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.out:
			if q.run(ctx, task) {
				q.pending.Add(-1)
			}
		}
	}
}

// run executes task with retries. It returns false if ctx ended first.
func (q *Queue) run(ctx context.Context, task propagation.Task) bool {
	tctx := ctx
	if task.CorrelationID != "" {
		tctx = logger.WithCorrelationID(ctx, task.CorrelationID)
	}

	var err error
	for attempt := 1; attempt <= q.cfg.Retry.MaxAttempts; attempt++ {
		task.Attempt = attempt
		if err = q.handler(tctx, task); err == nil {
			propagation.Observe(task.Kind, propagation.OutcomeOK)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if attempt == q.cfg.Retry.MaxAttempts {
			break
		}

		propagation.Observe(task.Kind, propagation.OutcomeRetry)
		logger.WithContext(tctx, q.logger).WarnContext(tctx, "propagation task failed, retrying",
			slog.String("task_id", task.ID.String()),
			slog.Int64("product_id", task.ProductID),
			slog.String("kind", string(task.Kind)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(q.cfg.Retry.Backoff(attempt)):
		}
	}

	taskErr := propagation.LogDeadLetter(tctx, q.logger, task, task.Attempt, err)
	q.deadMu.Lock()
	q.dead = append(q.dead, propagation.DeadLetter{Task: task, Error: taskErr.Error(), FailedAt: time.Now().UTC()})
	if over := len(q.dead) - q.cfg.MaxDeadLetters; over > 0 {
		q.dead = q.dead[over:]
	}
	q.deadMu.Unlock()
	return true
}
