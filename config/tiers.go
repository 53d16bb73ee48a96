// Package config holds the tier policy registry: a read-only, process-
// lifetime mapping from tier literal to (limit, window). Replacing the
// mapping requires a restart — there is no hot-reload path, by design.
package config

import "github.com/riftlabs/tier-ratelimiter"

// Registry is a static tier -> policy table. The zero value is not usable;
// construct with New or Default.
type Registry struct {
	tiers map[string]ratelimit.TierPolicy
}

// Default returns the built-in free/premium policy table.
func Default() Registry {
	return New(map[string]ratelimit.TierPolicy{
		"free":    {Requests: 10, WindowSeconds: 60},
		"premium": {Requests: 1000, WindowSeconds: 60},
	})
}

// New builds a Registry from an arbitrary tier table, primarily for tests.
func New(tiers map[string]ratelimit.TierPolicy) Registry {
	cp := make(map[string]ratelimit.TierPolicy, len(tiers))
	for k, v := range tiers {
		cp[k] = v
	}
	return Registry{tiers: cp}
}

// Lookup implements ratelimit.ConfigRegistry. The match is exact: no case
// or whitespace normalization is performed.
func (r Registry) Lookup(tier string) (ratelimit.TierPolicy, bool) {
	p, ok := r.tiers[tier]
	return p, ok
}
