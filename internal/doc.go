// Package internal contains helper utilities that are intentionally private to goIdentity,
// including secure random generation, code digests and refresh token encoding.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — pure-function flow orchestrators for every Engine operation
//   - limiters — domain-specific rate limiters (login, email change)
//   - outbound — fire-and-forget worker pool for notifications
//   - rate — fixed-window counter primitives (Redis and in-process)
//   - saga — ordered {action, compensation} runner
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
