package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/tokencache/auth"
	"github.com/jonwraymond/tokencache/cache"
	"github.com/jonwraymond/tokencache/health"
	"github.com/jonwraymond/tokencache/observe"
)

// server holds what the HTTP routes need.
type server struct {
	cache      *cache.TokenCache
	health     *health.Aggregator
	gatherer   prometheus.Gatherer
	logger     observe.Logger
	adminToken string
}

type whoamiResponse struct {
	Principal string    `json:"principal"`
	Issuer    string    `json:"issuer,omitempty"`
	Audience  []string  `json:"audience,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Fresh     bool      `json:"fresh"`
}

type invalidateResponse struct {
	Subject string `json:"subject"`
	Removed int    `json:"removed"`
}

// handler builds the daemon's route table.
func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	health.RegisterHandlers(mux, s.health)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	cached := auth.Middleware(auth.NewBearerAuthenticator(s.cache), s.logger)
	fresh := auth.Middleware(auth.NewBearerAuthenticator(s.cache, auth.WithRequireFresh()), s.logger)
	mux.Handle("GET /v1/whoami", cached(whoami(false)))
	mux.Handle("GET /v1/whoami/fresh", fresh(whoami(true)))

	if s.adminToken != "" {
		mux.Handle("POST /admin/invalidate", s.requireAdmin(http.HandlerFunc(s.invalidate)))
		mux.Handle("GET /admin/stats", s.requireAdmin(http.HandlerFunc(s.stats)))
	}

	return mux
}

func whoami(fresh bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		writeJSON(w, http.StatusOK, whoamiResponse{
			Principal: id.Principal,
			Issuer:    id.Issuer,
			Audience:  id.Audience,
			Roles:     id.Roles,
			ExpiresAt: id.ExpiresAt,
			Fresh:     fresh,
		})
	}
}

func (s *server) invalidate(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		http.Error(w, "subject is required", http.StatusBadRequest)
		return
	}

	removed := s.cache.InvalidateBySubject(r.Context(), subject)
	s.logger.Info(r.Context(), "subject invalidated",
		observe.Field{Key: "subject", Value: subject},
		observe.Field{Key: "removed", Value: removed},
	)
	writeJSON(w, http.StatusOK, invalidateResponse{Subject: subject, Removed: removed})
}

func (s *server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// requireAdmin admits requests bearing the configured admin token.
func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
