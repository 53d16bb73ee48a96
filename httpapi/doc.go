// Package httpapi adapts the decision engine, stats projector, and
// override writer to the HTTP wire protocol. It owns request parsing,
// response marshaling, and the mapping from ratelimit's error kinds to
// HTTP status codes; it holds no rate-limiting logic of its own.
package httpapi
