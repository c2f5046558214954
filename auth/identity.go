package auth

import (
	"slices"
	"time"

	"github.com/jonwraymond/tokencache/oracle"
)

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodNone   AuthMethod = "none"
	AuthMethodBearer AuthMethod = "bearer"
)

// Identity is an authenticated principal.
type Identity struct {
	// Principal is the token subject.
	Principal string

	// Issuer is the identity provider that issued the token.
	Issuer string

	// Audience is the set of intended recipients of the token.
	Audience []string

	// Roles are read from the "roles" claim when present.
	Roles []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// Claims holds every non-registered claim.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// IdentityFromClaims builds an Identity from verified claims.
func IdentityFromClaims(c *oracle.Claims, method AuthMethod) *Identity {
	id := &Identity{
		Principal: c.Subject,
		Issuer:    c.Issuer,
		Audience:  slices.Clone(c.Audience),
		Method:    method,
		Claims:    c.Clone().Extra,
		ExpiresAt: c.ExpiryTime(),
	}
	if c.IssuedAt > 0 {
		id.IssuedAt = c.IssuedAtTime()
	}
	if id.Claims == nil {
		id.Claims = map[string]any{}
	}

	switch roles := c.Extra["roles"].(type) {
	case []string:
		id.Roles = roles
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	return id
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasAudience checks if the token was issued for aud.
func (id *Identity) HasAudience(aud string) bool {
	return slices.Contains(id.Audience, aud)
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(id.ExpiresAt)
}
