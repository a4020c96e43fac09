// Package kafka carries propagation tasks over a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/utafrali/catalog/internal/propagation"
	pkgkafka "github.com/utafrali/catalog/pkg/kafka"
	"github.com/utafrali/catalog/pkg/logger"
)

const (
	// DefaultTopic carries index tasks.
	DefaultTopic = "catalog.product.index"
	// DefaultGroup is the consumer group of the indexing workers.
	DefaultGroup = "catalog-indexer"

	source = "catalog"
)

// EventPublisher is the part of pkg/kafka.Producer the publisher uses.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Publisher enqueues tasks by producing them to a topic, keyed by product id.
type Publisher struct {
	producer EventPublisher
	topic    string
}

var _ propagation.Queue = (*Publisher)(nil)

// NewPublisher creates a publisher for topic, or DefaultTopic when empty.
func NewPublisher(producer EventPublisher, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: producer, topic: topic}
}

// Enqueue publishes task. The event id is the task id, which lets the
// consumer skip redeliveries.
func (p *Publisher) Enqueue(ctx context.Context, task propagation.Task) error {
	event, err := toEvent(ctx, task)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, p.topic, event)
}

func toEvent(ctx context.Context, task propagation.Task) (*pkgkafka.Event, error) {
	if task.CorrelationID == "" {
		task.CorrelationID = logger.CorrelationIDFromContext(ctx)
	}
	event, err := pkgkafka.NewEvent(task.EventType(), strconv.FormatInt(task.ProductID, 10), source, task,
		pkgkafka.WithID(task.ID.String()),
		pkgkafka.WithCorrelationID(task.CorrelationID),
	)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	return event, nil
}

// WorkerConfig configures the consuming side.
type WorkerConfig struct {
	Brokers []string
	Topic   string
	Group   string
	Retry   propagation.RetryPolicy
	// DeferDelay paces tasks the index breaker refuses. The partition waits
	// meanwhile, which holds back later tasks for the same product.
	DeferDelay time.Duration
}

// Worker consumes tasks and runs them through a handler. Redelivered events
// are skipped by id; exhausted ones go to the topic's dead-letter topic.
type Worker struct {
	consumer *pkgkafka.Consumer
	logger   *slog.Logger
}

// NewWorker creates a worker backed by a kafka-go reader.
func NewWorker(cfg WorkerConfig, handler propagation.Handler, seen pkgkafka.IdempotencyStore, dlq *pkgkafka.DLQProducer, logger *slog.Logger) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{logger: logger}
	w.consumer = pkgkafka.NewConsumer(cfg.consumerConfig(), w.eventHandler(handler, seen, cfg), dlq, logger)
	return w
}

// NewWorkerWithReader creates a worker over an arbitrary reader.
func NewWorkerWithReader(r pkgkafka.MessageReader, cfg WorkerConfig, handler propagation.Handler, seen pkgkafka.IdempotencyStore, dlq *pkgkafka.DLQProducer, logger *slog.Logger) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{logger: logger}
	w.consumer = pkgkafka.NewConsumerWithReader(r, cfg.consumerConfig(), w.eventHandler(handler, seen, cfg), dlq, logger)
	return w
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	def := propagation.DefaultRetryPolicy()
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.BaseBackoff <= 0 {
		c.Retry.BaseBackoff = def.BaseBackoff
	}
	if c.DeferDelay <= 0 {
		c.DeferDelay = propagation.DefaultDeferDelay
	}
	return c
}

func (c WorkerConfig) consumerConfig() pkgkafka.ConsumerConfig {
	return pkgkafka.ConsumerConfig{
		Brokers:  c.Brokers,
		GroupID:  c.Group,
		Topic:    c.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Retry:    c.Retry,
	}
}

func (w *Worker) eventHandler(handler propagation.Handler, seen pkgkafka.IdempotencyStore, cfg WorkerConfig) pkgkafka.Handler {
	handler = propagation.WithDeferral(handler, cfg.DeferDelay, w.logger)
	maxAttempts := cfg.Retry.MaxAttempts
	h := func(ctx context.Context, event *pkgkafka.Event) error {
		var task propagation.Task
		if err := event.Decode(&task); err != nil {
			return fmt.Errorf("decode task from event %s: %w", event.ID, err)
		}
		if event.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
		}

		task.Attempt = pkgkafka.AttemptFromContext(ctx)
		err := handler(ctx, task)
		switch {
		case err == nil:
			propagation.Observe(task.Kind, propagation.OutcomeOK)
		case ctx.Err() != nil:
		case task.Attempt >= maxAttempts:
			err = propagation.LogDeadLetter(ctx, w.logger, task, task.Attempt, err)
		default:
			propagation.Observe(task.Kind, propagation.OutcomeRetry)
		}
		return err
	}
	if seen == nil {
		return h
	}
	return pkgkafka.IdempotentHandler(seen, h, w.logger)
}

// Run consumes until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Start(ctx)
}

// Close stops the underlying reader.
func (w *Worker) Close() error {
	return w.consumer.Close()
}
