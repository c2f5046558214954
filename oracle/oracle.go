package oracle

import (
	"context"
	"slices"
	"time"
)

// Oracle verifies identity tokens against the identity provider.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Verify must honor cancellation/deadlines.
// - Errors: failures are returned as-is; callers must not cache them.
type Oracle interface {
	// Verify decodes and validates token. When requireFresh is true the
	// oracle must also confirm the token has not been revoked since issuance,
	// even if that costs an extra round trip.
	Verify(ctx context.Context, token string, requireFresh bool) (*Claims, error)
}

// Func is an adapter to allow use of ordinary functions as Oracles.
type Func func(ctx context.Context, token string, requireFresh bool) (*Claims, error)

// Verify calls f(ctx, token, requireFresh).
func (f Func) Verify(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
	return f(ctx, token, requireFresh)
}

// Claims is the decoded claim set of a verified token.
type Claims struct {
	// Subject is the identity the token was issued to (sub).
	Subject string `json:"sub"`

	// Issuer is the token issuer (iss).
	Issuer string `json:"iss,omitempty"`

	// Audience is the intended audience (aud).
	Audience []string `json:"aud,omitempty"`

	// IssuedAt is the issue time in seconds since the epoch (iat).
	IssuedAt int64 `json:"iat"`

	// ExpiresAt is the expiry in seconds since the epoch (exp).
	ExpiresAt int64 `json:"exp"`

	// Extra holds every other claim the provider returned.
	Extra map[string]any `json:"extra,omitempty"`
}

// ExpiryTime returns ExpiresAt as a time.Time.
func (c *Claims) ExpiryTime() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

// IssuedAtTime returns IssuedAt as a time.Time.
func (c *Claims) IssuedAtTime() time.Time {
	return time.Unix(c.IssuedAt, 0)
}

// Clone returns a deep copy of c. JSON-shaped values in Extra (nested
// maps and slices) are copied; other values are shared.
func (c *Claims) Clone() *Claims {
	if c == nil {
		return nil
	}
	out := *c
	out.Audience = slices.Clone(c.Audience)
	if c.Extra != nil {
		out.Extra = cloneMap(c.Extra)
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	default:
		return v
	}
}

// Ensure Func implements Oracle
var _ Oracle = Func(nil)
