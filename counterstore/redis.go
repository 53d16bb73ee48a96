package counterstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed incr_and_expire.lua
var incrAndExpireScript string

// RedisStore implements ratelimit.CounterStore against a Redis-compatible
// server. incrAndExpire runs as a single EVALSHA of the embedded Lua
// script (loaded once at construction via SCRIPT LOAD), which is what makes
// the increment and the TTL assignment atomic — a plain client-side INCR
// followed by a conditional EXPIRE cannot give that guarantee, since a
// client that crashes between the two commands leaves a bucket with no
// TTL, pinning it forever.
type RedisStore struct {
	client    *redis.Client
	scriptSHA string
}

// New constructs a RedisStore, pinging the server and loading the
// incr-and-expire script. The returned store is ready for immediate use.
func New(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("counterstore: ping: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, incrAndExpireScript).Result()
	if err != nil {
		return nil, fmt.Errorf("counterstore: script load: %w", err)
	}

	return &RedisStore{client: client, scriptSHA: sha}, nil
}

// IncrAndExpire implements ratelimit.CounterStore.
func (s *RedisStore) IncrAndExpire(ctx context.Context, key string, ttlSeconds int64) (int64, error) {
	res, err := s.client.EvalSha(ctx, s.scriptSHA, []string{key}, ttlSeconds).Result()
	if err != nil && isNoScript(err) {
		res, err = s.client.Eval(ctx, incrAndExpireScript, []string{key}, ttlSeconds).Result()
	}
	if err != nil {
		return 0, fmt.Errorf("incrAndExpire: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("incrAndExpire: non-numeric result %T", res)
	}
	return count, nil
}

// TTL implements ratelimit.CounterStore: -1 (no expiry) and -2 (absent) are
// forwarded exactly as Redis reports them.
func (s *RedisStore) TTL(ctx context.Context, key string) (int64, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl: %w", err)
	}
	switch int64(d) {
	case -1, -2:
		return int64(d), nil
	default:
		return int64(d / time.Second), nil
	}
}

// Get implements ratelimit.CounterStore.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get: %w", err)
	}
	return v, true, nil
}

func isNoScript(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}
