package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/tokencache/cache"
	"github.com/jonwraymond/tokencache/health"
	"github.com/jonwraymond/tokencache/observe"
	"github.com/jonwraymond/tokencache/oracle"
)

type testServer struct {
	*httptest.Server
	cache *cache.TokenCache
	calls *atomic.Int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var calls atomic.Int64
	o := oracle.Func(func(_ context.Context, token string, _ bool) (*oracle.Claims, error) {
		calls.Add(1)
		if !strings.HasPrefix(token, "good-") {
			return nil, oracle.ErrTokenMalformed
		}
		return &oracle.Claims{
			Subject:   strings.TrimPrefix(token, "good-"),
			Issuer:    "https://idp.example.com",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
		}, nil
	})

	tc, err := cache.New(o, cache.Config{})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	t.Cleanup(func() { _ = tc.Close() })

	agg := health.NewAggregator()
	agg.Register(tc)

	srv := &server{
		cache:      tc,
		health:     agg,
		gatherer:   prometheus.NewRegistry(),
		logger:     observe.NopLogger(),
		adminToken: "admin-secret",
	}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, cache: tc, calls: &calls}
}

func (ts *testServer) do(t *testing.T, method, path, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestWhoami(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/whoami", "good-alice")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body whoamiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Principal != "alice" || body.Fresh {
		t.Errorf("body = %+v", body)
	}

	ts.do(t, http.MethodGet, "/v1/whoami", "good-alice")
	if n := ts.calls.Load(); n != 1 {
		t.Errorf("oracle calls = %d, want 1 (second request served from cache)", n)
	}
}

func TestWhoamiFresh_BypassesCache(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/v1/whoami", "good-bob")
	resp := ts.do(t, http.MethodGet, "/v1/whoami/fresh", "good-bob")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if n := ts.calls.Load(); n != 2 {
		t.Errorf("oracle calls = %d, want 2", n)
	}
}

func TestWhoami_Rejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name      string
		bearer    string
		challenge string
	}{
		{name: "missing", bearer: "", challenge: "Bearer"},
		{name: "invalid", bearer: "bad-token", challenge: `Bearer error="invalid_token"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, "/v1/whoami", tt.bearer)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
			if got := resp.Header.Get("WWW-Authenticate"); got != tt.challenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tt.challenge)
			}
		})
	}
}

func TestAdminInvalidate(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/v1/whoami", "good-carol")
	if ts.cache.Stats().Entries != 1 {
		t.Fatalf("entries = %d, want 1", ts.cache.Stats().Entries)
	}

	resp := ts.do(t, http.MethodPost, "/admin/invalidate?subject=carol", "admin-secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body invalidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Subject != "carol" || body.Removed != 1 {
		t.Errorf("body = %+v", body)
	}
	if ts.cache.Stats().Entries != 0 {
		t.Errorf("entries = %d after invalidation, want 0", ts.cache.Stats().Entries)
	}
}

func TestAdminRoutes_Guarded(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{name: "no token", method: http.MethodPost, path: "/admin/invalidate?subject=x", want: http.StatusUnauthorized},
		{name: "wrong token", method: http.MethodPost, path: "/admin/invalidate?subject=x", bearer: "nope", want: http.StatusUnauthorized},
		{name: "missing subject", method: http.MethodPost, path: "/admin/invalidate", bearer: "admin-secret", want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, path: "/admin/invalidate?subject=x", bearer: "admin-secret", want: http.StatusMethodNotAllowed},
		{name: "stats", method: http.MethodGet, path: "/admin/stats", bearer: "admin-secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ts.do(t, tt.method, tt.path, tt.bearer).StatusCode; got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdminRoutes_DisabledWithoutToken(t *testing.T) {
	tc, err := cache.New(oracle.Func(func(context.Context, string, bool) (*oracle.Claims, error) {
		return nil, oracle.ErrTokenMalformed
	}), cache.Config{})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	srv := &server{cache: tc, health: health.NewAggregator(), logger: observe.NopLogger()}

	rec := httptest.NewRecorder()
	srv.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/invalidate?subject=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/health", "/metrics"} {
		if got := ts.do(t, http.MethodGet, path, "").StatusCode; got != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, got)
		}
	}
}

func TestBuildOracle_Introspection(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("token") != "live" {
			_, _ = w.Write([]byte(`{"active":false}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"active": true,
			"sub":    "dave",
			"exp":    time.Now().Add(time.Hour).Unix(),
		})
	}))
	defer idp.Close()

	o, breaker := buildOracle(OracleConfig{
		Kind:             oracleIntrospection,
		IntrospectionURL: idp.URL,
		ClientID:         "tokencached",
		ClientSecret:     "s",
		Timeout:          time.Second,
		Retries:          1,
		RateLimit:        100,
		RateBurst:        10,
		MaxConcurrent:    4,
	}, observe.NewMiddleware(nil, nil, nil), observe.NopLogger())

	claims, err := o.Verify(context.Background(), "live", true)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "dave" {
		t.Errorf("Subject = %q, want dave", claims.Subject)
	}

	if _, err := o.Verify(context.Background(), "dead", true); err == nil {
		t.Error("Verify(inactive) error = nil")
	}
	if breaker.State() != oracle.BreakerClosed {
		t.Errorf("breaker state = %v, inactive tokens must not trip it", breaker.State())
	}
	if got := breaker.Check(context.Background()).Status; got != health.StatusHealthy {
		t.Errorf("breaker health = %v, want healthy", got)
	}
}
