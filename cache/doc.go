// Package cache memoizes identity-token verification results.
//
// A TokenCache sits in front of an oracle.Oracle. Verify serves decoded
// claims from memory while the token is inside its effective validity
// window (expiry minus ExpiryBuffer) and falls through to the oracle
// otherwise. The store is bounded both by entry count and by an
// approximate byte size, evicting least-recently-used entries first.
//
// Three paths remove entries besides LRU pressure: lazy eviction when an
// expired entry is looked up, a background sweep started with Start, and
// InvalidateBySubject for identities whose credentials must stop being
// trusted immediately (account deletion, bans).
//
// The cache is advisory. Purging it, or restarting the process, only
// raises oracle load; no error a caller sees ever originates in the cache
// itself except ErrEmptyToken.
package cache
