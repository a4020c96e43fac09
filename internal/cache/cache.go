package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

const (
	DefaultTTL               = 120 * time.Second
	DefaultDeepPageThreshold = 50
)

// Store is a byte-oriented cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Flush removes every entry owned by this store.
	Flush(ctx context.Context) error
}

// Config tunes a ReadThrough cache.
type Config struct {
	TTL               time.Duration
	DeepPageThreshold int
	SingleFlight      bool
}

// DefaultConfig returns a 120s TTL, a deep-page threshold of 50 and
// single-flight collapsing.
func DefaultConfig() Config {
	return Config{
		TTL:               DefaultTTL,
		DeepPageThreshold: DefaultDeepPageThreshold,
		SingleFlight:      true,
	}
}

// ReadThrough populates a Store lazily from compute functions. Backend
// failures are logged and never fail a read.
type ReadThrough struct {
	store     Store
	ttl       time.Duration
	threshold int
	group     *singleflight.Group
	logger    *slog.Logger
}

// New wraps store. Zero config fields take their defaults.
func New(store Store, cfg Config, logger *slog.Logger) *ReadThrough {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DeepPageThreshold <= 0 {
		cfg.DeepPageThreshold = DefaultDeepPageThreshold
	}
	c := &ReadThrough{
		store:     store,
		ttl:       cfg.TTL,
		threshold: cfg.DeepPageThreshold,
		logger:    logger,
	}
	if cfg.SingleFlight {
		c.group = &singleflight.Group{}
	}
	return c
}

// TTL returns the default entry lifetime.
func (c *ReadThrough) TTL() time.Duration {
	return c.ttl
}

// Bypass reports whether a page is too deep to be cached.
func (c *ReadThrough) Bypass(page int) bool {
	if page > c.threshold {
		requestsTotal.WithLabelValues("bypass").Inc()
		return true
	}
	return false
}

type noStore struct {
	value any
}

// NoStore marks a computed value as returned-but-not-cached.
func NoStore(v any) any {
	return noStore{value: v}
}

// GetOrCompute decodes the cached value for key into dst. On a miss, or when
// the backend fails, compute runs and its JSON encoding is stored for ttl and
// decoded into dst. Errors from compute are returned unchanged.
func (c *ReadThrough) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error), dst any) error {
	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, dst); err == nil {
			requestsTotal.WithLabelValues("hit").Inc()
			return nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", slog.String("key", key))
		requestsTotal.WithLabelValues("error").Inc()
	case errors.Is(err, ErrMiss):
		requestsTotal.WithLabelValues("miss").Inc()
	default:
		c.logger.ErrorContext(ctx, "cache get failed, reading through",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		requestsTotal.WithLabelValues("error").Inc()
	}

	data, err = c.compute(ctx, key, ttl, compute)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode computed value for %s: %w", key, err)
	}
	return nil
}

func (c *ReadThrough) compute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) ([]byte, error) {
	run := func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}

		skip, uncached := v.(noStore)
		if uncached {
			v = skip.value
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode value for %s: %w", key, err)
		}
		if !uncached && ttl > 0 {
			if err := c.store.Set(ctx, key, data, ttl); err != nil {
				c.logger.ErrorContext(ctx, "cache set failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
		return data, nil
	}

	if c.group == nil {
		v, err := run()
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	}

	v, err, _ := c.group.Do(key, run)
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Fetch is the typed form of GetOrCompute.
func Fetch[T any](ctx context.Context, c *ReadThrough, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return compute(ctx)
	}, &out)
	return out, err
}

// Invalidate removes the given keys.
func (c *ReadThrough) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	invalidationsTotal.WithLabelValues("key").Add(float64(len(keys)))
	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}
	return nil
}

// InvalidateAll flushes every entry.
func (c *ReadThrough) InvalidateAll(ctx context.Context) error {
	invalidationsTotal.WithLabelValues("all").Inc()
	if err := c.store.Flush(ctx); err != nil {
		return fmt.Errorf("invalidate all: %w", err)
	}
	return nil
}

// NopStore never holds anything. It backs CACHE_DRIVER=none.
type NopStore struct{}

func (NopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (NopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NopStore) Delete(context.Context, ...string) error { return nil }
func (NopStore) Flush(context.Context) error { return nil }
