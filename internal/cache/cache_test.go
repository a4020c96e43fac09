package cache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/cache"
	"github.com/utafrali/catalog/internal/cache/memory"
)

type snapshot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenStore fails every operation.
type brokenStore struct{}

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (brokenStore) Delete(context.Context, ...string) error { return errDown }
func (brokenStore) Flush(context.Context) error { return errDown }

func newCache(cfg cache.Config) (*cache.ReadThrough, *memory.Store) {
	store := memory.NewStore(memory.DefaultConfig())
	return cache.New(store, cfg, discardLogger()), store
}

func TestFetch_MissThenHit(t *testing.T) {
	c, _ := newCache(cache.DefaultConfig())
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (snapshot, error) {
		calls++
		return snapshot{ID: 1, Name: "Widget"}, nil
	}

	first, err := cache.Fetch(ctx, c, cache.ProductKey(1), c.TTL(), compute)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, c, cache.ProductKey(1), c.TTL(), compute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestFetch_ComputeErrorPropagatesAndIsNotCached(t *testing.T) {
	c, store := newCache(cache.DefaultConfig())
	boom := errors.New("not found")

	_, err := cache.Fetch(context.Background(), c, "k", time.Minute, func(context.Context) (snapshot, error) {
		return snapshot{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestFetch_BackendFailureReadsThrough(t *testing.T) {
	c := cache.New(brokenStore{}, cache.DefaultConfig(), discardLogger())
	calls := 0

	for i := 0; i < 2; i++ {
		got, err := cache.Fetch(context.Background(), c, "k", time.Minute, func(context.Context) (snapshot, error) {
			calls++
			return snapshot{ID: 7}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
	}
	assert.Equal(t, 2, calls)

	assert.Error(t, c.Invalidate(context.Background(), "k"))
	assert.Error(t, c.InvalidateAll(context.Background()))
}

func TestInvalidate_NextReadRecomputes(t *testing.T) {
	c, _ := newCache(cache.DefaultConfig())
	ctx := context.Background()
	name := "Widget"
	compute := func(context.Context) (snapshot, error) { return snapshot{ID: 1, Name: name}, nil }

	_, err := cache.Fetch(ctx, c, cache.ProductKey(1), time.Minute, compute)
	require.NoError(t, err)

	name = "Gadget"
	require.NoError(t, c.Invalidate(ctx, cache.ProductKey(1)))
	got, err := cache.Fetch(ctx, c, cache.ProductKey(1), time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", got.Name)
}

func TestInvalidateAll_FlushesQueries(t *testing.T) {
	c, store := newCache(cache.DefaultConfig())
	ctx := context.Background()
	for _, page := range []string{"1", "2"} {
		key := cache.QueryKey(cache.KindList, map[string]string{"page": page}, 15)
		_, err := cache.Fetch(ctx, c, key, time.Minute, func(context.Context) ([]snapshot, error) {
			return []snapshot{{ID: 1}}, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, store.Len())

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, 0, store.Len())
	assert.NoError(t, c.Invalidate(ctx))
}

func TestNoStore_ReturnsWithoutCaching(t *testing.T) {
	c, store := newCache(cache.DefaultConfig())
	var dst snapshot
	err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (any, error) {
		return cache.NoStore(snapshot{ID: 3}), nil
	}, &dst)
	require.NoError(t, err)
	assert.Equal(t, int64(3), dst.ID)
	assert.Equal(t, 0, store.Len())
}

func TestBypass(t *testing.T) {
	c, _ := newCache(cache.Config{})
	assert.False(t, c.Bypass(1))
	assert.False(t, c.Bypass(50))
	assert.True(t, c.Bypass(51))
	assert.Equal(t, cache.DefaultTTL, c.TTL())
}

func TestSingleFlight_CollapsesConcurrentMisses(t *testing.T) {
	c, _ := newCache(cache.Config{SingleFlight: true})
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Fetch(context.Background(), c, "hot", time.Minute, func(context.Context) (snapshot, error) {
				calls.Add(1)
				<-release
				return snapshot{ID: 9}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(9), got.ID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestNopStore(t *testing.T) {
	c := cache.New(cache.NopStore{}, cache.DefaultConfig(), discardLogger())
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cache.Fetch(context.Background(), c, "k", time.Minute, func(context.Context) (int, error) {
			calls++
			return 1, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
	assert.NoError(t, c.InvalidateAll(context.Background()))
}
