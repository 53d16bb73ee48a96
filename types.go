package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock supplies the wall-clock instant used by the resolver and the
// engine's key derivation. Tests inject a fixed or steppable Clock.
type Clock func() time.Time

// Override is a per-user limit/window/expiry triple that supersedes the
// user's tier while active. All three fields are meaningful only together;
// see Resolver for the activation rule.
type Override struct {
	Limit         int
	WindowSeconds int
	Expiry        time.Time
}

// UserRecord is the subset of the user store row the core needs: an id, a
// tier literal, and an optional active-or-inactive override.
type UserRecord struct {
	ID       uuid.UUID
	Tier     string
	Override *Override
}

// TierPolicy is the (limit, window) pair a tier maps to in the config
// registry.
type TierPolicy struct {
	Requests      int
	WindowSeconds int
}

// ConfigRegistry resolves a tier literal to its policy. Implementations are
// read-only for the lifetime of the process.
type ConfigRegistry interface {
	Lookup(tier string) (TierPolicy, bool)
}

// CounterStore is the narrow, side-effecting capability the engine and the
// stats projector need from the shared counter backend.
type CounterStore interface {
	// IncrAndExpire atomically increments the integer at key by 1 and, iff
	// the resulting value is 1 (the key was just created), sets its TTL to
	// ttlSeconds. Returns the post-increment value.
	IncrAndExpire(ctx context.Context, key string, ttlSeconds int64) (int64, error)
	// TTL returns seconds until expiry, -1 if key exists without a TTL, -2
	// if key is absent.
	TTL(ctx context.Context, key string) (int64, error)
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (value int64, ok bool, err error)
}

// DecisionKind discriminates the two Decision variants.
type DecisionKind int

const (
	// Allowed means the request is within budget.
	Allowed DecisionKind = iota
	// RateLimited means the request is over budget; RetryAfterSeconds on
	// the enclosing Decision carries the recommended wait.
	RateLimited
)

// Decision is the engine's output: a sum type with two variants. It is
// never an error — RateLimited is a successful, classified outcome.
type Decision struct {
	Kind              DecisionKind
	RetryAfterSeconds int
}

// OverridePatch is the partial update the override writer accepts: any
// subset of the three override fields, each nullable.
type OverridePatch struct {
	Limit         *int
	WindowSeconds *int
	Expiry        *time.Time
}

// OverrideFields is the raw post-update trio as stored on the row: each
// field reflects what is actually persisted, independently nullable. Unlike
// Override, this is not collapsed to nil when the three fields aren't all
// present together — a partial override still reports the fields it has.
type OverrideFields struct {
	Limit         *int
	WindowSeconds *int
	Expiry        *time.Time
}

// Stats is the read-only projection of a user's current bucket.
type Stats struct {
	UserID            uuid.UUID
	Tier              string
	Limit             int
	WindowSeconds     int
	CurrentCount      int64
	SecondsUntilReset int64
	OverrideActive    bool
}
