package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/tokencache/cache"
	"github.com/jonwraymond/tokencache/observe"
)

// Oracle kinds.
const (
	oracleJWKS          = "jwks"
	oracleIntrospection = "introspection"
)

var errInvalidConfig = errors.New("tokencached: invalid config")

// Config is the daemon configuration file.
type Config struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminToken guards /admin routes. Empty disables them.
	AdminToken string `yaml:"admin_token"`

	Cache           cache.Config  `yaml:"cache"`
	Oracle          OracleConfig  `yaml:"oracle"`
	Observe         ObserveConfig `yaml:"observe"`
}

// OracleConfig selects and tunes the identity oracle behind the cache.
type OracleConfig struct {
	// Kind is "jwks" or "introspection".
	Kind string `yaml:"kind"`

	JWKSURL     string        `yaml:"jwks_url"`
	KeyCacheTTL time.Duration `yaml:"key_cache_ttl"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	Algorithms  []string      `yaml:"algorithms"`
	Leeway      time.Duration `yaml:"leeway"`

	IntrospectionURL string `yaml:"introspection_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	ClientAuthMethod string `yaml:"client_auth_method"`

	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RateLimit     float64       `yaml:"rate_limit"`
	RateBurst     int           `yaml:"rate_burst"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the oracle.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	ServiceName     string  `yaml:"service_name"`
	TracingExporter string  `yaml:"tracing_exporter"`
	SamplePct       float64 `yaml:"sample_pct"`
	MetricsExporter string  `yaml:"metrics_exporter"`
	LogLevel        string  `yaml:"log_level"`
}

// defaultConfig returns the configuration used for absent fields.
func defaultConfig() Config {
	return Config{
		Listen:          ":8080",
		ShutdownTimeout: 15 * time.Second,
		Cache:           cache.DefaultConfig(),
		Oracle: OracleConfig{
			Kind:    oracleJWKS,
			Timeout: 5 * time.Second,
			Retries: 2,
		},
		Observe: ObserveConfig{
			ServiceName:     "tokencached",
			MetricsExporter: "prometheus",
			LogLevel:        "info",
		},
	}
}

// loadConfig reads the YAML file at path, expanding ${VAR} references
// from the environment first.
func loadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseConfig(f)
}

func parseConfig(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	expanded, err := expandEnvStrict(string(raw))
	if err != nil {
		return Config{}, fmt.Errorf("expand config: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is required", errInvalidConfig)
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}

	switch c.Oracle.Kind {
	case oracleJWKS:
		if c.Oracle.JWKSURL == "" {
			return fmt.Errorf("%w: oracle.jwks_url is required for kind %q", errInvalidConfig, c.Oracle.Kind)
		}
	case oracleIntrospection:
		if c.Oracle.IntrospectionURL == "" {
			return fmt.Errorf("%w: oracle.introspection_url is required for kind %q", errInvalidConfig, c.Oracle.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown oracle kind %q", errInvalidConfig, c.Oracle.Kind)
	}
	if c.Oracle.RateLimit < 0 {
		return fmt.Errorf("%w: oracle.rate_limit must not be negative", errInvalidConfig)
	}
	if c.Oracle.Retries < 0 || c.Oracle.MaxConcurrent < 0 {
		return fmt.Errorf("%w: oracle.retries and oracle.max_concurrent must not be negative", errInvalidConfig)
	}

	return c.observeConfig().Validate()
}

func (c Config) observeConfig() *observe.Config {
	return &observe.Config{
		ServiceName:     c.Observe.ServiceName,
		TraceExporter:   c.Observe.TracingExporter,
		SampleRatio:     c.Observe.SamplePct,
		MetricsExporter: c.Observe.MetricsExporter,
		LogLevel:        c.Observe.LogLevel,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvStrict expands $VAR and ${VAR} from the environment.
// A ${VAR} whose variable is unset is an error; $$ yields a literal $.
func expandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00TOKENCACHED_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(match[1]); !ok {
			missing[match[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(keys, ", "))
	}

	s = os.ExpandEnv(s)
	return strings.ReplaceAll(s, dollarSentinel, "$"), nil
}
