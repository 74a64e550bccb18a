// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRefresh, RunVerifyEmailChange,
// etc.) accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. This keeps the Engine type thin and
// lets every branch be tested with fake closures.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential gateway, profile store,
// limiters, notifier, audit dispatcher, and metrics. They do NOT own any of
// these resources; ownership stays with the Engine. Multi-step writes across
// the gateway and the profile store go through internal/saga.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
//   - Log or audit secrets: passwords, codes and tokens never reach Observer.
package flows
