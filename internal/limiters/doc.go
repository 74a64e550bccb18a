// Package limiters provides domain-specific rate limiters built on top of the
// internal/rate primitives.
//
// # Limiters
//
//   - [LoginLimiter] — per-email + per-IP failure budget for password logins.
//   - [EmailChangeLimiter] — per-user budgets for email change initiate and verify.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time; the counter backend
// (Redis or in-process) is chosen by the caller.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting — flow functions decide consequences.
package limiters
