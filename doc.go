// Package goIdentity turns an external identity provider's primitives
// (password verification, custom tokens, ID tokens, rotating refresh tokens)
// into an application session model, and runs the two-phase email change
// workflow on top of a local profile store.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator interfaces ([CredentialGateway], [ProfileStore], [Notifier],
// [ErrorReporter]) and value types. All internal coordination (flow orchestration,
// compensation, rate limiting, audit and notification dispatch) lives under internal/
// and is never exported.
//
// Adapters live in sibling packages: gateway/local and gateway/firebase implement
// [CredentialGateway], profile/postgres and profile/memory implement [ProfileStore],
// notify implements [Notifier], errtrack implements [ErrorReporter], and httpapi plus
// middleware expose the Engine over HTTP.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports goIdentity (no import cycles).
//   - Log, audit or report passwords, tokens, verification codes or cookies.
//
// # Error contract
//
// Every Engine method returns one of the sentinels in errors.go, possibly wrapped.
// Classify with [errors.Is]. Raw provider errors and timeouts never reach callers
// unwrapped.
package goIdentity
