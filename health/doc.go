// Package health reports whether the token verification service can serve.
//
// Components implement Checker. An Aggregator runs a set of checkers with
// a shared deadline and folds their results into one Status: any
// unhealthy result makes the whole unhealthy, otherwise any degraded
// result makes it degraded.
//
// The HTTP handlers map the folded status onto liveness and readiness responses:
//
//	mux := http.NewServeMux()
//	agg := health.NewAggregator()
//	agg.Register(tokenCache)
//	agg.Register(breaker)
//	health.RegisterHandlers(mux, agg)
//
// /healthz always answers 200 while the process runs, /readyz answers 503
// only when the folded status is unhealthy, and /health returns every
// result as JSON.
package health
