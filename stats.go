package ratelimit

import "context"

// StatsProjector is the non-mutating sibling of Engine: it reports the
// current state of a user's bucket without incrementing it.
type StatsProjector struct {
	Store    CounterStore
	Resolver Resolver
	Now      Clock
}

// Read resolves the user's effective policy and reports the current bucket
// state without mutating it.
func (p StatsProjector) Read(ctx context.Context, user UserRecord) (Stats, error) {
	now := p.Now()

	r, err := p.Resolver.Resolve(user, now)
	if err != nil {
		return Stats{}, err
	}

	key := BucketKey(user.ID.String(), now, r.WindowSeconds)

	count, _, err := p.Store.Get(ctx, key)
	if err != nil {
		return Stats{}, &StoreError{Key: key, Err: err}
	}

	ttl, err := p.Store.TTL(ctx, key)
	if err != nil {
		return Stats{}, &StoreError{Key: key, Err: err}
	}

	return Stats{
		UserID:            user.ID,
		Tier:              user.Tier,
		Limit:             r.Limit,
		WindowSeconds:     r.WindowSeconds,
		CurrentCount:      count,
		SecondsUntilReset: ttl,
		OverrideActive:    r.OverrideActive,
	}, nil
}
