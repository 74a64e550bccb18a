// Package local is a self-hosted identity provider backed by Redis. It
// implements goIdentity.CredentialGateway for deployments that do not use a
// hosted provider, and for development.
//
// # Data layout
//
// All keys share Config.Prefix:
//
//	u:<uid>      hash   identity record (email, verified flag, name, password hash)
//	e:<email>    string uid owning the email (unique index, claimed with SET NX)
//	ct:<jti>     string uid of an unredeemed custom token
//	rs:<sid>     hash   refresh session (uid, secret digest)
//	us:<uid>     set    refresh session ids of a user
//	oob:<code>   string pending out-of-band action (verify email, reset password)
//
// # Refresh rotation
//
// A refresh token encodes a session id and a secret; only the SHA-256 of the
// secret is stored. Rotation is a compare-and-swap in Lua. Presenting a stale
// secret deletes the session, so a replayed token also ends the session of
// whoever rotated it first.
package local
