// Package memory is an in-process cache.Store built on sturdyc.
package memory

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/utafrali/catalog/internal/cache"
)

// Config sizes the sturdyc client.
type Config struct {
	Capacity           int
	NumShards          int
	EvictionPercentage int
	// MaxTTL bounds every entry; per-entry TTLs shorter than it are honoured
	// through the stored expiry.
	MaxTTL time.Duration
}

// DefaultConfig returns settings suited to a single catalog instance.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		EvictionPercentage: 10,
		MaxTTL:             10 * time.Minute,
	}
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Store implements cache.Store in memory.
type Store struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
}

// NewStore creates an in-memory store.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.NumShards <= 0 {
		cfg.NumShards = def.NumShards
	}
	if cfg.EvictionPercentage < 1 || cfg.EvictionPercentage > 100 {
		cfg.EvictionPercentage = def.EvictionPercentage
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = def.MaxTTL
	}
	return &Store{
		client: sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.MaxTTL, cfg.EvictionPercentage),
		now:    time.Now,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.client.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	if !s.now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, cache.ErrMiss
	}
	return e.data, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, len(value))
	copy(data, value)
	s.client.Set(key, entry{data: data, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.client.Delete(k)
	}
	return nil
}

func (s *Store) Flush(_ context.Context) error {
	for _, k := range s.client.ScanKeys() {
		s.client.Delete(k)
	}
	return nil
}

// Len returns the number of entries, expired ones included until evicted.
func (s *Store) Len() int {
	return s.client.Size()
}
