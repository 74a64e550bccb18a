package goIdentity

import "errors"

var (
	// ErrValidation is returned when a request fails input validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for a wrong password and for an unknown
	// email alike. It is never forwarded to error tracking.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthenticationFailed is returned when the identity provider fails for a
	// reason other than rejected credentials, including timeouts.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDuplicateAccount is returned when registration collides with an
	// existing identity or profile.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrEmailInUse is returned when an email change targets an address that
	// is already bound to an identity.
	ErrEmailInUse = errors.New("email already in use")
	// ErrAccountIncomplete is returned when an identity authenticates but has
	// no local profile.
	ErrAccountIncomplete = errors.New("account incomplete")
	// ErrRefreshToken is returned for any refresh failure. Callers must clear
	// the refresh cookie and re-authenticate.
	ErrRefreshToken = errors.New("refresh token invalid")
	// ErrNoPendingChange is returned when verifying an email change while no
	// request is pending.
	ErrNoPendingChange = errors.New("no pending email change")
	// ErrInvalidToken is returned when an email change code does not match.
	ErrInvalidToken = errors.New("invalid verification token")
	// ErrTokenExpired is returned when an email change code is presented after
	// the verification window. The pending request is cleared.
	ErrTokenExpired = errors.New("verification token expired")
	// ErrDownstream is returned when a collaborator fails in a way the caller
	// cannot act on.
	ErrDownstream = errors.New("downstream service error")
	// ErrLoginRateLimited is returned when login attempts for an email or
	// client IP exceed the configured window.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEmailChangeRateLimited is returned when email change initiate or
	// verify attempts for a user exceed the configured window.
	ErrEmailChangeRateLimited = errors.New("email change rate limited")
	// ErrUnauthorized is returned when a bearer token is absent or rejected by
	// the identity provider.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Errors returned by CredentialGateway implementations. The Engine translates
// them into the caller-facing errors above.
var (
	// ErrIdentityNotFound reports that no identity matches the uid or email.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityEmailExists reports that an identity already owns the email.
	ErrIdentityEmailExists = errors.New("identity email already exists")
	// ErrCredentialRejected reports a wrong password or unknown email.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrTokenRejected reports an invalid, expired, revoked, or reused token.
	ErrTokenRejected = errors.New("token rejected")
)

// ErrProfileNotFound is returned by ProfileStore implementations when no
// profile exists for the uid.
var ErrProfileNotFound = errors.New("profile not found")
