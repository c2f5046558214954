package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT oracle.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim). Empty skips the check.
	Issuer string

	// Audience is the expected token audience (aud claim). Empty skips the check.
	Audience string

	// ValidMethods restricts the accepted signing algorithms.
	// Default: RS256, ES256
	ValidMethods []string

	// Leeway is the clock skew tolerated when validating exp/iat/nbf.
	Leeway time.Duration

	// SubjectClaim is the claim containing the subject identifier.
	// Default: "sub"
	SubjectClaim string

	// Revocations is consulted when Verify is called with requireFresh.
	// If nil, requireFresh adds no extra check.
	Revocations RevocationChecker
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// RevocationChecker reports when a subject's sessions were last revoked.
//
// A token issued before the returned time is considered revoked. A zero
// time means the subject has never been revoked.
type RevocationChecker interface {
	RevokedAt(ctx context.Context, subject string) (time.Time, error)
}

// StaticKeyProvider provides a single fixed signing key.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider. key may be an HMAC
// secret ([]byte) or a public key.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	return p.key, nil
}

// JWTOracle verifies signed JWTs locally.
type JWTOracle struct {
	config      JWTConfig
	keyProvider KeyProvider
	parser      *jwt.Parser
}

// NewJWTOracle creates a new JWT oracle.
func NewJWTOracle(config JWTConfig, keyProvider KeyProvider) *JWTOracle {
	if len(config.ValidMethods) == 0 {
		config.ValidMethods = []string{"RS256", "ES256"}
	}
	if config.SubjectClaim == "" {
		config.SubjectClaim = "sub"
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(config.ValidMethods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}

	return &JWTOracle{
		config:      config,
		keyProvider: keyProvider,
		parser:      jwt.NewParser(opts...),
	}
}

// Verify validates the token signature and registered claims.
func (o *JWTOracle) Verify(ctx context.Context, token string, requireFresh bool) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	_, err := o.parser.ParseWithClaims(token, mapClaims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return o.keyProvider.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}

	claims, err := o.buildClaims(mapClaims)
	if err != nil {
		return nil, err
	}

	if requireFresh && o.config.Revocations != nil {
		revokedAt, err := o.config.Revocations.RevokedAt(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("oracle: revocation check: %w", err)
		}
		if !revokedAt.IsZero() && claims.IssuedAt < revokedAt.Unix() {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, ErrKeySetUnavailable):
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	case errors.Is(err, ErrKeyNotFound):
		return fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
}

func (o *JWTOracle) buildClaims(mc jwt.MapClaims) (*Claims, error) {
	claims := &Claims{Extra: make(map[string]any)}

	subject, ok := mc[o.config.SubjectClaim].(string)
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: missing %s claim", ErrTokenMalformed, o.config.SubjectClaim)
	}
	claims.Subject = subject

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Unix()
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	if iss, err := mc.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = []string(aud)
	}

	for k, v := range mc {
		switch k {
		case "exp", "iat", "iss", "aud", o.config.SubjectClaim:
			continue
		}
		claims.Extra[k] = v
	}

	return claims, nil
}

// Ensure JWTOracle implements Oracle
var _ Oracle = (*JWTOracle)(nil)

// Ensure StaticKeyProvider implements KeyProvider
var _ KeyProvider = (*StaticKeyProvider)(nil)
