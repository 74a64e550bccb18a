// Package audit delivers identity lifecycle events (registration, login,
// refresh, email change, logout) to a caller-supplied [Sink] off the request
// path.
//
// [Dispatcher] buffers events and either drops or blocks when the buffer is
// full. Dropped events are counted, never retried.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The Engine and flows do that.
//   - Import goIdentity or any sibling internal package.
//   - Record credentials. Events carry a uid, an IP, and string metadata.
package audit
