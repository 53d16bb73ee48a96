package counterstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(context.Background(), client)
	require.NoError(t, err)
	return store, server
}

func TestRedisStore_IncrAndExpire_FirstIncrementSetsTTL(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	count, err := store.IncrAndExpire(ctx, "rate_limit:u1:0", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 60*time.Second, server.TTL("rate_limit:u1:0"))
}

func TestRedisStore_IncrAndExpire_SubsequentIncrementsDoNotExtendTTL(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	_, err := store.IncrAndExpire(ctx, "rate_limit:u1:0", 60)
	require.NoError(t, err)

	server.FastForward(30 * time.Second)

	count, err := store.IncrAndExpire(ctx, "rate_limit:u1:0", 60)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.LessOrEqual(t, server.TTL("rate_limit:u1:0"), 30*time.Second)
}

func TestRedisStore_TTL_SentinelValues(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ttl, err := store.TTL(ctx, "absent-key")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ttl)

	_, err = store.IncrAndExpire(ctx, "rate_limit:u2:0", 60)
	require.NoError(t, err)

	ttl, err = store.TTL(ctx, "rate_limit:u2:0")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, int64(60))
	assert.GreaterOrEqual(t, ttl, int64(0))
}

func TestRedisStore_Get_AbsentKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	v, ok, err := store.Get(ctx, "absent-key")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), v)
}

func TestRedisStore_Get_PresentKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.IncrAndExpire(ctx, "rate_limit:u3:0", 60)
	require.NoError(t, err)
	_, err = store.IncrAndExpire(ctx, "rate_limit:u3:0", 60)
	require.NoError(t, err)

	v, ok, err := store.Get(ctx, "rate_limit:u3:0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
}

func TestRedisStore_IncrAndExpire_BucketExpiresAndResets(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	_, err := store.IncrAndExpire(ctx, "rate_limit:u5:0", 5)
	require.NoError(t, err)

	server.FastForward(6 * time.Second)

	count, err := store.IncrAndExpire(ctx, "rate_limit:u5:0", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
