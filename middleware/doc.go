// Package middleware exposes the HTTP session boundary of goIdentity: bearer
// authentication, double-submit CSRF with an Origin allow-list, per-IP
// request throttling, and request metadata propagation.
//
// # Guards
//
//   - [RequireSession] authenticates the bearer ID token and attaches the
//     identity to the request context.
//   - [CSRF] mints tokens on safe requests and verifies them on unsafe ones.
//   - [Throttle] applies a token bucket per client IP.
//   - [RequestMeta] forwards client IP and User-Agent to the Engine.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token
// verification is delegated to Engine.Authenticate and token primitives to
// package csrf.
//
// # What this package must NOT do
//
//   - Parse or verify ID tokens directly.
//   - Log tokens, cookies, or Authorization headers.
//   - Render response bodies beyond the configured [ErrorWriter].
package middleware
