package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/cache"
)

func TestStore_SetGetDelete(t *testing.T) {
	s := NewStore(Config{})
	ctx := context.Background()

	buf := []byte("value")
	require.NoError(t, s.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestStore_PerEntryExpiry(t *testing.T) {
	s := NewStore(DefaultConfig())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("2"), time.Hour))

	now = now.Add(2 * time.Second)
	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = s.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestStore_Flush(t *testing.T) {
	s := NewStore(DefaultConfig())
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, []byte(k), time.Minute))
	}
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, s.Len())
}
