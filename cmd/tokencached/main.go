// Command tokencached serves authenticated HTTP routes behind a token
// verification cache.
//
// Usage:
//
//	tokencached -c /etc/tokencached.yaml [--listen :9090] [--log-level debug]
//	tokencached -c /etc/tokencached.yaml --check-config
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonwraymond/tokencache/cache"
	"github.com/jonwraymond/tokencache/health"
	"github.com/jonwraymond/tokencache/observe"
	"github.com/jonwraymond/tokencache/oracle"
)

func main() {
	opts, help, err := parseOptions(os.Args[1:])
	if help {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	cfg, err := loadConfig(opts.Config)
	if err == nil {
		opts.apply(&cfg)
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokencached: %v\n", err)
		os.Exit(2)
	}
	if opts.CheckConfig {
		fmt.Printf("tokencached: %s is valid\n", opts.Config)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "tokencached: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then shuts everything down.
func run(ctx context.Context, cfg Config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obsCfg := cfg.observeConfig()
	obsCfg.Registerer = registry
	obs, err := observe.NewObserver(ctx, *obsCfg)
	if err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()
	logger := obs.Logger()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return fmt.Errorf("oracle middleware: %w", err)
	}
	verifier, breaker := buildOracle(cfg.Oracle, mw, logger)

	tc, err := cache.New(verifier, cfg.Cache,
		cache.WithLogger(logger),
		cache.WithMeter(obs.Meter()),
		cache.WithTracer(obs.Tracer()),
	)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	tc.Start(ctx)
	defer func() { _ = tc.Close() }()

	agg := health.NewAggregator()
	agg.Register(tc)
	agg.Register(breaker)

	srv := &server{
		cache:      tc,
		health:     agg,
		gatherer:   registry,
		logger:     logger,
		adminToken: cfg.AdminToken,
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "tokencached listening",
			observe.Field{Key: "addr", Value: cfg.Listen},
			observe.Field{Key: "oracle", Value: cfg.Oracle.Kind},
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildOracle assembles the oracle chain. From the provider outwards:
// per-call timeout, instrumentation, rate limit, retry, circuit breaker
// and finally the concurrency limit, so an open circuit fails before
// waiting on the limiter and a full house is not counted as a provider
// failure.
func buildOracle(cfg OracleConfig, mw *observe.Middleware, logger observe.Logger) (oracle.Oracle, *oracle.Breaker) {
	var base oracle.Oracle
	switch cfg.Kind {
	case oracleIntrospection:
		base = oracle.NewIntrospectionOracle(oracle.IntrospectionConfig{
			Endpoint:         cfg.IntrospectionURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     cfg.ClientSecret,
			ClientAuthMethod: cfg.ClientAuthMethod,
		})
	default:
		keys := oracle.NewJWKSKeyProvider(oracle.JWKSConfig{
			URL:      cfg.JWKSURL,
			CacheTTL: cfg.KeyCacheTTL,
		})
		base = oracle.NewJWTOracle(oracle.JWTConfig{
			Issuer:       cfg.Issuer,
			Audience:     cfg.Audience,
			ValidMethods: cfg.Algorithms,
			Leeway:       cfg.Leeway,
		}, keys)
	}

	o := oracle.WithTimeout(base, cfg.Timeout)
	o = mw.Wrap(cfg.Kind, o)
	o = oracle.WithRateLimit(o, cfg.RateLimit, cfg.RateBurst)
	o = oracle.WithRetry(o, oracle.RetryConfig{
		MaxAttempts: cfg.Retries + 1,
		Jitter:      true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Debug(context.Background(), "retrying oracle call",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err},
			)
		},
	})

	breaker := oracle.WithCircuitBreaker(o, oracle.BreakerConfig{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		OnStateChange: func(from, to oracle.BreakerState) {
			logger.Warn(context.Background(), "oracle circuit state changed",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		},
	})
	return oracle.WithConcurrencyLimit(breaker, cfg.MaxConcurrent, cfg.MaxWait), breaker
}
