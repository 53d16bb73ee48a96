// Package ratelimit implements a tier-based, fixed-window HTTP rate limiter.
//
// A request is rate-limited per user rather than per IP or API key: the
// effective (limit, window) pair comes either from the user's subscription
// tier (config.Registry) or from a per-user override that supersedes the
// tier for a bounded validity period (see Resolver). Counters for the
// current window live in a shared, atomically-mutated counter store
// (counterstore.RedisStore) so that many server processes observe one source of
// truth.
//
// The three moving pieces are:
//
//   - Resolver: picks (limit, windowSeconds) for a user at a given instant.
//   - Engine: increments the current bucket atomically and classifies the
//     result as Allowed or RateLimited.
//   - StatsProjector: reads the same bucket without mutating it.
//
// None of the three know about HTTP; package httpapi adapts them to the
// wire protocol.
package ratelimit
