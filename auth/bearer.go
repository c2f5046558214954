package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonwraymond/tokencache/cache"
	"github.com/jonwraymond/tokencache/oracle"
)

// BearerOption configures a BearerAuthenticator.
type BearerOption func(*BearerAuthenticator)

// WithRequireFresh makes every verification bypass the cache and ask the
// oracle for a fresh verdict. Use it on routes where a revoked session
// must be refused at once.
func WithRequireFresh() BearerOption {
	return func(a *BearerAuthenticator) { a.requireFresh = true }
}

// WithHeaderName reads the token from name instead of Authorization.
func WithHeaderName(name string) BearerOption {
	return func(a *BearerAuthenticator) {
		if name != "" {
			a.headerName = name
		}
	}
}

// BearerAuthenticator authenticates "Bearer <token>" credentials through a
// cache.Verifier.
type BearerAuthenticator struct {
	verifier     cache.Verifier
	headerName   string
	requireFresh bool
}

// NewBearerAuthenticator creates a bearer authenticator over v.
func NewBearerAuthenticator(v cache.Verifier, opts ...BearerOption) *BearerAuthenticator {
	a := &BearerAuthenticator{
		verifier:   v,
		headerName: "Authorization",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the authenticator name.
func (a *BearerAuthenticator) Name() string {
	return "bearer"
}

// Authenticate verifies the bearer token in header. Token rejections are
// failures; an oracle that cannot be reached is an error.
func (a *BearerAuthenticator) Authenticate(ctx context.Context, header http.Header) (*AuthResult, error) {
	token, ok := ExtractBearerToken(header.Get(a.headerName))
	if !ok {
		return AuthFailure(ErrMissingCredentials), nil
	}

	claims, err := a.verifier.Verify(ctx, token, a.requireFresh)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if oracle.IsProviderFailure(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return AuthFailure(fmt.Errorf("%w: %w", ErrInvalidCredentials, err)), nil
	}

	return AuthSuccess(IdentityFromClaims(claims, AuthMethodBearer)), nil
}

// ExtractBearerToken returns the token from an Authorization header value.
// The scheme is matched case-insensitively.
func ExtractBearerToken(header string) (string, bool) {
	const scheme = "bearer "
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}

// Ensure BearerAuthenticator implements Authenticator
var _ Authenticator = (*BearerAuthenticator)(nil)
