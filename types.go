package goIdentity

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goIdentity/claims"
)

// CredentialGateway is the Engine's view of the external identity provider.
// Implementations live in gateway/local (Redis-backed) and gateway/firebase.
//
// Implementations report the gateway errors declared in errors.go
// ([ErrIdentityNotFound], [ErrIdentityEmailExists], [ErrCredentialRejected],
// [ErrTokenRejected]) so the Engine can classify failures; any other error is
// treated as a provider failure.
type CredentialGateway interface {
	CreateIdentity(ctx context.Context, in NewIdentity) (ExternalIdentity, error)
	GetIdentity(ctx context.Context, uid string) (ExternalIdentity, error)
	GetIdentityByEmail(ctx context.Context, email string) (ExternalIdentity, error)
	UpdateIdentity(ctx context.Context, uid string, update IdentityUpdate) (ExternalIdentity, error)
	DeleteIdentity(ctx context.Context, uid string) error

	// VerifyPassword returns the uid owning email when password matches.
	// Wrong passwords and unknown emails both return ErrCredentialRejected.
	VerifyPassword(ctx context.Context, email, password string) (string, error)
	MintCustomToken(ctx context.Context, uid string) (string, error)
	ExchangeCustomToken(ctx context.Context, customToken string) (SessionTokens, error)
	// ExchangeRefreshToken redeems a refresh token for a new pair. A refresh
	// token can be redeemed once; a second redemption returns ErrTokenRejected.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (SessionTokens, error)
	// VerifyIDToken returns the raw claims of a valid ID token.
	VerifyIDToken(ctx context.Context, idToken string) (map[string]any, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error

	EmailVerificationLink(ctx context.Context, email string) (string, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

// ProfileStore persists local profiles keyed by the identity uid.
type ProfileStore interface {
	// CreateProfile inserts p. A uid or email uniqueness conflict returns an
	// error matching ErrDuplicateAccount.
	CreateProfile(ctx context.Context, p Profile) error
	// GetProfile returns ErrProfileNotFound when no row exists.
	GetProfile(ctx context.Context, uid string) (Profile, error)
	// SetPendingEmailChange overwrites the pending request in one write.
	SetPendingEmailChange(ctx context.Context, uid string, pending PendingEmailChange) error
	// ClearPendingEmailChange clears the pending request. Clearing an absent
	// request is not an error.
	ClearPendingEmailChange(ctx context.Context, uid string) error
	// CommitEmailChange sets the email and clears the pending request in one
	// write, returning the updated profile.
	CommitEmailChange(ctx context.Context, uid, newEmail string) (Profile, error)
}

// Notifier delivers outbound email. Delivery is best-effort except for
// email change codes, where the Engine waits for the result.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// ErrorReporter forwards unexpected failures to error tracking. The Engine
// filters and redacts before calling it.
type ErrorReporter interface {
	Report(ctx context.Context, report ErrorReport)
}

// NewIdentity is the input to [CredentialGateway.CreateIdentity].
type NewIdentity struct {
	Email         string
	Password      string
	DisplayName   string
	EmailVerified bool
}

// ExternalIdentity is the provider-owned identity record.
type ExternalIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	Disabled      bool
	CustomClaims  map[string]any
}

// IdentityUpdate lists the identity fields to change. Nil fields are left
// untouched.
type IdentityUpdate struct {
	Email         *string
	EmailVerified *bool
	DisplayName   *string
}

// SessionTokens is a short-lived ID token plus a rotating refresh token.
type SessionTokens struct {
	IDToken      string
	RefreshToken string
	UID          string
	ExpiresIn    time.Duration
}

// Profile is the locally stored user profile.
type Profile struct {
	UID         string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string

	// PendingEmailChange is nil when no change is in progress.
	PendingEmailChange *PendingEmailChange

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PendingEmailChange is an in-flight email change request. The code itself
// is never stored; TokenHash is its keyed digest.
type PendingEmailChange struct {
	Email       string
	TokenHash   string
	RequestedAt time.Time
}

// ProfileFields are the optional profile attributes supplied at registration.
type ProfileFields struct {
	DisplayName string
	FirstName   string
	LastName    string
}

// RegisterRequest is the input to [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
	Profile  ProfileFields
}

// RegisterResult is returned by [Engine.Register]. Tokens is nil when the
// account was created but the automatic login failed.
type RegisterResult struct {
	Profile Profile
	Tokens  *SessionTokens
	Message string
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	Profile Profile
	Tokens  SessionTokens
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	Profile Profile
	Tokens  SessionTokens
}

// EmailChangeTicket describes an accepted email change request.
type EmailChangeTicket struct {
	PendingEmail string
	ExpiresAt    time.Time
}

// Identity is the authenticated caller attached to a request context.
type Identity = claims.Identity

// MessageKind identifies the template an outbound message uses.
type MessageKind string

const (
	MessageEmailVerification MessageKind = "email_verification"
	MessagePasswordReset     MessageKind = "password_reset"
	MessageEmailChangeCode   MessageKind = "email_change_code"
	// MessageEmailChangedOld notifies the previous address of a completed change.
	MessageEmailChangedOld MessageKind = "email_changed_old"
	// MessageEmailChangedNew confirms a completed change to the new address.
	MessageEmailChangedNew MessageKind = "email_changed_new"
)

// Message is one outbound email. Code and Link carry secrets and must not be
// logged.
type Message struct {
	Kind   MessageKind
	To     string
	UserID string
	Code   string
	Link   string
	Data   map[string]string
}

// ErrorReport is one failure forwarded to an [ErrorReporter].
type ErrorReport struct {
	Operation string
	UserID    string
	Err       error
	Tags      map[string]string
	Extra     map[string]any
	// Request is set by the HTTP layer for panics and unmapped errors.
	Request *http.Request
}
