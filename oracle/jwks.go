package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"golang.org/x/sync/singleflight"
)

// maxJWKSBodySize caps how much of a JWKS response is read.
const maxJWKSBodySize = 4 << 20

// JWKSConfig configures the JWKS key provider.
type JWKSConfig struct {
	// URL is the JWKS endpoint URL.
	URL string

	// CacheTTL is how long to cache keys before refreshing.
	// Default: 1 hour
	CacheTTL time.Duration

	// MinRefreshInterval is the shortest gap between refreshes triggered
	// by an unknown key ID. Within it, unknown IDs are answered from the
	// current set.
	// Default: 1 minute
	MinRefreshInterval time.Duration

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client
}

// JWKSKeyProvider retrieves public signing keys from a JWKS endpoint.
// RSA and EC keys are supported; keys of other types are skipped.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu          sync.RWMutex
	keys        map[string]any
	fetchedAt   time.Time
	lastFetched map[string]any // survives failed refreshes
	sfGroup     singleflight.Group
}

// NewJWKSKeyProvider creates a new JWKS key provider.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.MinRefreshInterval == 0 {
		config.MinRefreshInterval = time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &JWKSKeyProvider{
		config:      config,
		keys:        make(map[string]any),
		lastFetched: make(map[string]any),
	}
}

// GetKey returns the key for the given key ID.
// If keyID is empty and the set holds keys, an arbitrary one is returned.
//
// An ID absent from a successfully fetched set yields ErrKeyNotFound. A set
// that cannot be fetched or parsed yields ErrKeySetUnavailable.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	p.mu.RLock()
	age := time.Since(p.fetchedAt)
	key := p.lookupLocked(p.keys, keyID)
	p.mu.RUnlock()
	if age < p.config.CacheTTL {
		if key != nil {
			return key, nil
		}
		if age < p.config.MinRefreshInterval {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, keyID)
		}
	}

	// Unknown kid or stale set: refresh once for all concurrent callers.
	_, err, _ := p.sfGroup.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})

	p.mu.RLock()
	key = p.lookupLocked(p.keys, keyID)
	if key == nil && err != nil {
		key = p.lookupLocked(p.lastFetched, keyID)
	}
	p.mu.RUnlock()

	if key != nil {
		return key, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, keyID)
}

// lookupLocked finds a key by ID. Caller must hold at least RLock.
func (p *JWKSKeyProvider) lookupLocked(keys map[string]any, keyID string) any {
	if keyID == "" {
		for _, key := range keys {
			return key
		}
		return nil
	}
	return keys[keyID]
}

func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrKeySetUnavailable, err)
	}

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch JWKS: %w", ErrKeySetUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetch JWKS: unexpected status: %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize))
	if err != nil {
		return fmt.Errorf("%w: read JWKS: %w", ErrKeySetUnavailable, err)
	}

	keys, err := parseJWKS(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.keys = keys
	p.fetchedAt = time.Now()
	for kid, key := range keys {
		p.lastFetched[kid] = key
	}
	p.mu.Unlock()

	return nil
}

// parseJWKS decodes a key set, keeping only valid public signing keys.
func parseJWKS(body []byte) (map[string]any, error) {
	var raw struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode JWKS: %w", ErrKeySetUnavailable, err)
	}

	keys := make(map[string]any, len(raw.Keys))
	for _, msg := range raw.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(msg); err != nil {
			continue // unsupported kty
		}
		if !jwk.Valid() || !jwk.IsPublic() {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		keys[jwk.KeyID] = jwk.Key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: JWKS contains no usable keys", ErrKeySetUnavailable)
	}
	return keys, nil
}

// Ensure JWKSKeyProvider implements KeyProvider
var _ KeyProvider = (*JWKSKeyProvider)(nil)
