// Package oracle defines the boundary to the identity provider that
// authoritatively verifies bearer tokens.
//
// An Oracle turns a raw token string into a decoded Claims set or fails.
// The package ships two implementations (local JWT verification against a
// JWKS endpoint, and RFC 7662 token introspection) plus decorators that
// wrap any Oracle: circuit breaker, per-call timeout, retry with backoff,
// client-side rate limiting and a cap on calls in flight.
//
// Oracles are stateless from the caller's perspective: calling Verify twice
// with the same token has no side effects beyond network traffic, which is
// what makes their results safe to memoize (see package cache).
package oracle
