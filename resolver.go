package ratelimit

import (
	"fmt"
	"time"
)

// Resolver picks the effective (limit, windowSeconds, overrideActive) for a
// user at a given instant, consulting the override first and falling back
// to the tier config registry.
type Resolver struct {
	Config ConfigRegistry
}

// Resolved is the output of Resolve: WindowSeconds is > 0 on success.
// Limit is returned as the override or tier policy carries it; Resolve
// does not check it.
type Resolved struct {
	Limit          int
	WindowSeconds  int
	OverrideActive bool
}

// Resolve picks the effective policy for a user at a given instant. An
// override is active iff it is present and its expiry is strictly after
// now. The user-store boundary (package
// userstore) collapses a partial set of the three nullable override columns
// to a nil *Override, so a non-nil Override here is always fully populated
// — partial overrides never reach the resolver.
func (r Resolver) Resolve(user UserRecord, now time.Time) (Resolved, error) {
	if user.Override != nil && user.Override.Expiry.After(now) {
		if user.Override.WindowSeconds <= 0 {
			return Resolved{}, &ConfigError{Msg: "Invalid windowSeconds"}
		}
		return Resolved{
			Limit:          user.Override.Limit,
			WindowSeconds:  user.Override.WindowSeconds,
			OverrideActive: true,
		}, nil
	}

	policy, ok := r.Config.Lookup(user.Tier)
	if !ok {
		return Resolved{}, &ConfigError{Msg: fmt.Sprintf("Config missing for tier %s", user.Tier)}
	}
	if policy.WindowSeconds <= 0 {
		return Resolved{}, &ConfigError{Msg: "Invalid windowSeconds"}
	}
	return Resolved{
		Limit:          policy.Requests,
		WindowSeconds:  policy.WindowSeconds,
		OverrideActive: false,
	}, nil
}
