package auth

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/tokencache/observe"
)

// Middleware authenticates every request with a. Rejected credentials get
// 401 with a Bearer challenge, an unreachable identity provider gets 503,
// and authenticated requests reach next with the Identity on their
// context.
func Middleware(a Authenticator, logger observe.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			result, err := a.Authenticate(ctx, r.Header)
			if err != nil {
				logger.Warn(ctx, "authentication unavailable",
					observe.Field{Key: "authenticator", Value: a.Name()},
					observe.Field{Key: "error", Value: err},
				)
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			}
			if !result.Authenticated {
				challenge(w, result.Error)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, result.Identity)))
		})
	}
}

// challenge writes a 401 with an RFC 6750 WWW-Authenticate header.
func challenge(w http.ResponseWriter, err error) {
	value := "Bearer"
	if !errors.Is(err, ErrMissingCredentials) {
		value = `Bearer error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", value)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
