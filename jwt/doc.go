// Package jwt issues and verifies the tokens of the local identity provider:
// short-lived ID tokens presented as bearer credentials, and single-use
// custom tokens exchanged for a session.
//
// # Architecture boundaries
//
// The package signs and parses only. Replay protection for custom tokens
// (the jti) and refresh-session state live in gateway/local.
//
// # What this package must NOT do
//
//   - Import goIdentity or any adapter package.
//   - Accept a token of one [Kind] where another is expected.
//   - Log token strings or key material.
package jwt
