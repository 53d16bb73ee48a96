package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/riftlabs/tier-ratelimiter/counterstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, now time.Time) (Engine, *miniredis.Miniredis, func()) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store, err := counterstore.New(context.Background(), client)
	require.NoError(t, err)

	clock := now
	engine := Engine{
		Store:    store,
		Resolver: Resolver{Config: fakeRegistry{"free": {Requests: 10, WindowSeconds: 60}}},
		Now:      func() time.Time { return clock },
	}

	cleanup := func() {
		_ = client.Close()
		server.Close()
	}
	return engine, server, cleanup
}

// newTestEngineMutableClock returns an Engine whose Clock reads from the
// returned *time.Time, letting a test step time forward (paired with
// server.FastForward to move miniredis's own TTL clock the same amount) to
// exercise bucket-boundary and override-expiry transitions.
func newTestEngineMutableClock(t *testing.T, start time.Time) (Engine, *miniredis.Miniredis, *time.Time, func()) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store, err := counterstore.New(context.Background(), client)
	require.NoError(t, err)

	current := start
	engine := Engine{
		Store:    store,
		Resolver: Resolver{Config: fakeRegistry{"free": {Requests: 10, WindowSeconds: 60}}},
		Now:      func() time.Time { return current },
	}

	cleanup := func() {
		_ = client.Close()
		server.Close()
	}
	return engine, server, &current, cleanup
}

func TestEngine_Check_FreeTierFirstThreeAllowed(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, server, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "free"}

	for i := 0; i < 3; i++ {
		d, err := engine.Check(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, Allowed, d.Kind)
	}

	key := BucketKey(user.ID.String(), now, 60)
	gotValue, err := server.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "3", gotValue)
	ttl := server.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 60*time.Second)
}

// Free tier exhaustion: the 11th request is denied with a Retry-After that
// lies within the 60s window.
func TestEngine_Check_FreeTierExhaustionSetsRetryAfter(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, _, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "free"}

	var last Decision
	for i := 0; i < 11; i++ {
		d, err := engine.Check(context.Background(), user)
		require.NoError(t, err)
		last = d
	}
	assert.Equal(t, RateLimited, last.Kind)
	assert.LessOrEqual(t, last.RetryAfterSeconds, 60)
	assert.GreaterOrEqual(t, last.RetryAfterSeconds, 0)
}

// An active override supersedes the tier and is exhausted on its own
// terms.
func TestEngine_Check_OverrideSupersedesTier(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, _, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{
		ID:   uuid.New(),
		Tier: "free",
		Override: &Override{
			Limit:         2,
			WindowSeconds: 30,
			Expiry:        now.Add(300 * time.Second),
		},
	}

	d1, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Allowed, d1.Kind)

	d2, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Allowed, d2.Kind)

	d3, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, RateLimited, d3.Kind)
	assert.LessOrEqual(t, d3.RetryAfterSeconds, 30)
}

// Free tier exhaustion rolls over at the next bucket boundary: the bucket
// key for t=60 differs from the one for t=0, so the counter at the new key
// starts fresh even though the old one is still over budget.
func TestEngine_Check_FreeTierResetsAtNextBucketBoundary(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, server, now, cleanup := newTestEngineMutableClock(t, start)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "free"}

	var last Decision
	for i := 0; i < 11; i++ {
		d, err := engine.Check(context.Background(), user)
		require.NoError(t, err)
		last = d
	}
	assert.Equal(t, RateLimited, last.Kind)

	*now = start.Add(60 * time.Second)
	server.FastForward(60 * time.Second)

	d, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Allowed, d.Kind)

	key := BucketKey(user.ID.String(), *now, 60)
	gotValue, err := server.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", gotValue)
}

// An override that expires mid-sequence falls back to the tier on the next
// check: Allowed while active, RateLimited once exhausted, then Allowed
// again under the tier's own limit once the override's expiry has passed.
func TestEngine_Check_OverrideExpiryFallsBackToTier(t *testing.T) {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, server, now, cleanup := newTestEngineMutableClock(t, start)
	defer cleanup()

	user := UserRecord{
		ID:   uuid.New(),
		Tier: "free",
		Override: &Override{
			Limit:         1,
			WindowSeconds: 30,
			Expiry:        start.Add(30 * time.Second),
		},
	}

	d1, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Allowed, d1.Kind)

	d2, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, RateLimited, d2.Kind)

	*now = start.Add(31 * time.Second)
	server.FastForward(31 * time.Second)

	d3, err := engine.Check(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Allowed, d3.Kind)

	key := BucketKey(user.ID.String(), *now, 60)
	gotValue, err := server.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", gotValue)
}

func TestEngine_Check_CountEqualsLimitIsAllowed(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, _, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "free"}

	var last Decision
	for i := 0; i < 10; i++ {
		d, err := engine.Check(context.Background(), user)
		require.NoError(t, err)
		last = d
	}
	assert.Equal(t, Allowed, last.Kind)
}

func TestEngine_Check_CountExceedsLimitByOneIsDenied(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, _, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "free"}

	var last Decision
	for i := 0; i < 11; i++ {
		d, err := engine.Check(context.Background(), user)
		require.NoError(t, err)
		last = d
	}
	assert.Equal(t, RateLimited, last.Kind)
}

func TestEngine_Check_UnknownTierPropagatesConfigError(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	engine, _, cleanup := newTestEngine(t, now)
	defer cleanup()

	user := UserRecord{ID: uuid.New(), Tier: "mystery"}

	_, err := engine.Check(context.Background(), user)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBucketKey_SameWindowSameKey(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 30, 0, time.UTC)
	later := now.Add(20 * time.Second)
	userID := uuid.New().String()

	assert.Equal(t, BucketKey(userID, now, 60), BucketKey(userID, later, 60))
}

func TestBucketKey_DifferentWindowDifferentKey(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 30, 0, time.UTC)
	later := now.Add(40 * time.Second)
	userID := uuid.New().String()

	assert.NotEqual(t, BucketKey(userID, now, 60), BucketKey(userID, later, 60))
}
