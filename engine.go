package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Engine orchestrates the resolver and the counter store to produce a
// Decision for a single user. It has no HTTP knowledge; httpapi adapts its
// output to the wire protocol.
type Engine struct {
	Store    CounterStore
	Resolver Resolver
	Now      Clock
}

// Check resolves the user's effective policy, atomically increments the
// current window's bucket, and classifies the result.
func (e Engine) Check(ctx context.Context, user UserRecord) (Decision, error) {
	now := e.Now()

	r, err := e.Resolver.Resolve(user, now)
	if err != nil {
		return Decision{}, err
	}

	key := BucketKey(user.ID.String(), now, r.WindowSeconds)

	count, err := e.Store.IncrAndExpire(ctx, key, int64(r.WindowSeconds))
	if err != nil {
		return Decision{}, &StoreError{Key: key, Err: err}
	}

	if count <= int64(r.Limit) {
		return Decision{Kind: Allowed}, nil
	}

	ttl, err := e.Store.TTL(ctx, key)
	if err != nil {
		return Decision{}, &StoreError{Key: key, Err: err}
	}

	retryAfter := int(ttl)
	if ttl < 0 {
		// -2: the key was lost (TTL expiry race) between the increment
		// and this read; -1: the key carries no expiry. Either way, fall
		// back to a full window.
		retryAfter = r.WindowSeconds
	}

	return Decision{Kind: RateLimited, RetryAfterSeconds: retryAfter}, nil
}

// windowStartSeconds computes the bucket boundary:
// floor(nowSeconds/windowSeconds)*windowSeconds.
func windowStartSeconds(nowSeconds int64, windowSeconds int) int64 {
	w := int64(windowSeconds)
	return (nowSeconds / w) * w
}

// BucketKey derives the counter-store key for user u at instant now with
// the given window: "rate_limit:<userId>:<windowStartSeconds>".
func BucketKey(userID string, now time.Time, windowSeconds int) string {
	windowStart := windowStartSeconds(now.Unix(), windowSeconds)
	return fmt.Sprintf("rate_limit:%s:%d", userID, windowStart)
}
