package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IntrospectionConfig configures the OAuth2 token introspection oracle.
type IntrospectionConfig struct {
	// Endpoint is the URL of the RFC 7662 introspection endpoint.
	Endpoint string

	// ClientID is the client identifier for introspection requests.
	ClientID string

	// ClientSecret is the client secret for introspection requests.
	ClientSecret string

	// ClientAuthMethod is how to authenticate to the introspection endpoint.
	// Options: "client_secret_basic" (default), "client_secret_post"
	ClientAuthMethod string

	// SubjectClaim is the response member holding the subject identifier.
	// Default: "sub"
	SubjectClaim string

	// Timeout is the HTTP request timeout for introspection calls.
	// Default: 10 seconds.
	Timeout time.Duration

	// HTTPClient is the HTTP client to use. If nil, a default client is used.
	HTTPClient *http.Client
}

// IntrospectionOracle verifies opaque tokens by asking the provider.
// Every call reaches the provider, so requireFresh needs no extra work.
type IntrospectionOracle struct {
	config     IntrospectionConfig
	httpClient *http.Client
}

// NewIntrospectionOracle creates a new introspection oracle.
func NewIntrospectionOracle(config IntrospectionConfig) *IntrospectionOracle {
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.SubjectClaim == "" {
		config.SubjectClaim = "sub"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &IntrospectionOracle{
		config:     config,
		httpClient: httpClient,
	}
}

// Verify introspects the token.
func (o *IntrospectionOracle) Verify(ctx context.Context, token string, _ bool) (*Claims, error) {
	raw, err := o.introspect(ctx, token)
	if err != nil {
		return nil, err
	}

	if active, _ := raw["active"].(bool); !active {
		return nil, ErrTokenInactive
	}

	return o.buildClaims(raw)
}

func (o *IntrospectionOracle) introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	if o.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", o.config.ClientID)
		form.Set("client_secret", o.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	if o.config.ClientAuthMethod == "client_secret_basic" {
		credentials := base64.StdEncoding.EncodeToString([]byte(o.config.ClientID + ":" + o.config.ClientSecret))
		req.Header.Set("Authorization", "Basic "+credentials)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntrospectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrIntrospectionFailed, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrIntrospectionFailed, err)
	}
	return raw, nil
}

func (o *IntrospectionOracle) buildClaims(raw map[string]any) (*Claims, error) {
	claims := &Claims{Extra: make(map[string]any)}

	subject, ok := raw[o.config.SubjectClaim].(string)
	if !ok || subject == "" {
		return nil, fmt.Errorf("%w: introspection response has no %s", ErrIntrospectionFailed, o.config.SubjectClaim)
	}
	claims.Subject = subject

	exp, ok := raw["exp"].(float64)
	if !ok || exp <= 0 {
		return nil, fmt.Errorf("%w: introspection response has no exp", ErrIntrospectionFailed)
	}
	claims.ExpiresAt = int64(exp)

	if iat, ok := raw["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}
	if iss, ok := raw["iss"].(string); ok {
		claims.Issuer = iss
	}
	switch aud := raw["aud"].(type) {
	case string:
		claims.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				claims.Audience = append(claims.Audience, s)
			}
		}
	}

	for k, v := range raw {
		switch k {
		case "active", "exp", "iat", "iss", "aud", o.config.SubjectClaim:
			continue
		}
		claims.Extra[k] = v
	}

	return claims, nil
}

// Ensure IntrospectionOracle implements Oracle
var _ Oracle = (*IntrospectionOracle)(nil)
