package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog/internal/cache"
)

func setupTestRedis(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, ""), mr
}

func TestStore_SetGetWithPrefix(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "product:1", []byte(`{"id":1}`), time.Minute))
	assert.True(t, mr.Exists("catalog:product:1"))
	assert.Equal(t, time.Minute, mr.TTL("catalog:product:1"))

	got, err := store.Get(ctx, "product:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(got))
}

func TestStore_MissAndExpiry(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "absent")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 2*time.Second))
	mr.FastForward(3 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "missing"))
	require.NoError(t, store.Delete(ctx))

	assert.False(t, mr.Exists("catalog:a"))
	assert.True(t, mr.Exists("catalog:b"))
}

func TestStore_FlushOnlyTouchesPrefix(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		require.NoError(t, store.Set(ctx, "products:list:"+time.Duration(i).String(), []byte("x"), time.Minute))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, store.Flush(ctx))

	assert.Len(t, mr.Keys(), 1)
	assert.True(t, mr.Exists("other:key"))
}

func TestStore_ErrorsWhenServerDown(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
	assert.Error(t, store.Flush(context.Background()))
	assert.Error(t, store.Ping(context.Background()))
}
