// Package auth authenticates HTTP requests carrying bearer tokens.
//
// A BearerAuthenticator extracts the token from the Authorization header
// and resolves it through a cache.Verifier, usually a *cache.TokenCache,
// so repeated requests with the same token do not reach the identity
// provider. Routes that must observe revocations immediately use
// WithRequireFresh, which bypasses the cache.
//
// Middleware wires an Authenticator into an http.Handler chain and puts
// the resulting Identity on the request context.
package auth
