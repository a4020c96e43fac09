package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/propagation"
	"github.com/utafrali/catalog/pkg/breaker"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	pkgkafka "github.com/utafrali/catalog/pkg/kafka"
	"github.com/utafrali/catalog/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

// sliceReader serves queued messages, then blocks until ctx is done.
type sliceReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed int
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *sliceReader) Close() error { return nil }

func (r *sliceReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func publish(t *testing.T, tasks ...propagation.Task) []kafka.Message {
	t.Helper()
	w := &recordingWriter{}
	pub := NewPublisher(pkgkafka.NewProducerWithWriter(w, testLogger()), "")
	for _, task := range tasks {
		require.NoError(t, pub.Enqueue(context.Background(), task))
	}
	return w.messages()
}

func run(t *testing.T, w *Worker, r *sliceReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return r.committedCount() >= want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func fastRetry() propagation.RetryPolicy {
	return propagation.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
}

func TestPublisher_KeysByProductID(t *testing.T) {
	task := propagation.NewTask(propagation.KindRemove, 42)
	ctx := logger.WithCorrelationID(context.Background(), "req-1")

	w := &recordingWriter{}
	pub := NewPublisher(pkgkafka.NewProducerWithWriter(w, testLogger()), "")
	require.NoError(t, pub.Enqueue(ctx, task))

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultTopic, msgs[0].Topic)
	assert.Equal(t, "42", string(msgs[0].Key))

	event, err := pkgkafka.DecodeEvent(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, task.ID.String(), event.ID)
	assert.Equal(t, "catalog.product.remove", event.Type)
	assert.Equal(t, "req-1", event.CorrelationID)

	var decoded propagation.Task
	require.NoError(t, event.Decode(&decoded))
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, int64(42), decoded.ProductID)
	assert.Equal(t, propagation.KindRemove, decoded.Kind)
}

func TestPublisher_ProducerError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	pub := NewPublisher(pkgkafka.NewProducerWithWriter(w, testLogger()), "custom.topic")

	err := pub.Enqueue(context.Background(), propagation.NewTask(propagation.KindUpsert, 1))
	assert.ErrorContains(t, err, "broker down")
}

func TestWorker_RunsPublishedTasks(t *testing.T) {
	msgs := publish(t,
		propagation.NewTask(propagation.KindUpsert, 1),
		propagation.NewTask(propagation.KindRemove, 2),
	)
	r := &sliceReader{queue: msgs}

	var mu sync.Mutex
	var got []propagation.Task
	handler := func(_ context.Context, task propagation.Task) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, task)
		return nil
	}

	w := NewWorkerWithReader(r, WorkerConfig{Retry: fastRetry()}, handler, nil, nil, testLogger())
	run(t, w, r, 2)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ProductID)
	assert.Equal(t, 1, got[0].Attempt)
	assert.Equal(t, propagation.KindRemove, got[1].Kind)
}

func TestWorker_SkipsRedeliveredTask(t *testing.T) {
	msgs := publish(t, propagation.NewTask(propagation.KindUpsert, 1))
	r := &sliceReader{queue: []kafka.Message{msgs[0], msgs[0]}}

	var mu sync.Mutex
	calls := 0
	handler := func(context.Context, propagation.Task) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	}

	seen := pkgkafka.NewMemoryIdempotencyStore(time.Minute)
	w := NewWorkerWithReader(r, WorkerConfig{Retry: fastRetry()}, handler, seen, nil, testLogger())
	run(t, w, r, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestWorker_ExhaustedTaskGoesToDLQ(t *testing.T) {
	msgs := publish(t, propagation.NewTask(propagation.KindUpsert, 5))
	r := &sliceReader{queue: msgs}
	dlqWriter := &recordingWriter{}
	dlq := pkgkafka.NewDLQProducerWithWriter(dlqWriter, testLogger())

	var mu sync.Mutex
	var attempts []int
	handler := func(_ context.Context, task propagation.Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, task.Attempt)
		return errors.New("index unavailable")
	}

	w := NewWorkerWithReader(r, WorkerConfig{Retry: fastRetry()}, handler, nil, dlq, testLogger())
	run(t, w, r, 1)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, attempts)
	mu.Unlock()

	dead := dlqWriter.messages()
	require.Len(t, dead, 1)
	assert.Equal(t, pkgkafka.DLQTopic(DefaultTopic), dead[0].Topic)
	assert.Equal(t, "5", string(dead[0].Key))

	var lastErr string
	for _, h := range dead[0].Headers {
		if h.Key == "dlq.error" {
			lastErr = string(h.Value)
		}
	}
	assert.Contains(t, lastErr, "TASK_FAILED")
	assert.Contains(t, lastErr, "index unavailable")
}

func TestWorker_RefusedCallsWaitWithoutDeadLettering(t *testing.T) {
	msgs := publish(t, propagation.NewTask(propagation.KindUpsert, 6))
	r := &sliceReader{queue: msgs}
	dlqWriter := &recordingWriter{}
	dlq := pkgkafka.NewDLQProducerWithWriter(dlqWriter, testLogger())

	var mu sync.Mutex
	var attempts []int
	handler := func(_ context.Context, task propagation.Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, task.Attempt)
		if len(attempts) <= 5 {
			return apperrors.Dependency("search index upsert", breaker.ErrOpen)
		}
		return nil
	}

	cfg := WorkerConfig{Retry: propagation.RetryPolicy{MaxAttempts: 1, BaseBackoff: time.Millisecond}, DeferDelay: time.Millisecond}
	w := NewWorkerWithReader(r, cfg, handler, nil, dlq, testLogger())
	run(t, w, r, 1)

	mu.Lock()
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, attempts)
	mu.Unlock()
	assert.Empty(t, dlqWriter.messages())
}
