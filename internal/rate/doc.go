// Package rate provides the fixed-window counter primitive behind every
// limiter in goIdentity.
//
// # Window semantics
//
// A window opens on the first hit for a key and lasts for the configured
// duration; hits inside it increment one shared count. Two backends implement
// [Counter]:
//
//   - [RedisCounter] — atomic INCR + PEXPIRE-on-first-hit via a Lua script,
//     shared across processes.
//   - [MemoryCounter] — per-process map of {window start, count} entries for
//     single-instance deployments and tests.
//
// [Limiter] layers a {max, window} policy on top of a Counter.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goIdentity module.
package rate
