// Package counterstore implements the shared, atomic counter backend on
// top of Redis. The load-bearing operation is incrAndExpire, which must
// not let an increment race with the TTL assignment that pins the
// bucket's lifetime — see RedisStore for why a plain INCR followed by a
// conditional EXPIRE is not safe.
package counterstore
