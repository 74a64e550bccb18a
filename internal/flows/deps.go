package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Register     RegisterDeps
	Login        LoginDeps
	Refresh      RefreshDeps
	EmailChange  EmailChangeDeps
	AccountEmail AccountEmailDeps
}

// Errors carries the root sentinels the flows return or classify. Flows never
// construct their own error values for caller-visible failures.
type Errors struct {
	Validation             error
	InvalidCredentials     error
	AuthenticationFailed   error
	DuplicateAccount       error
	EmailInUse             error
	AccountIncomplete      error
	RefreshToken           error
	NoPendingChange        error
	InvalidToken           error
	TokenExpired           error
	Downstream             error
	LoginRateLimited       error
	EmailChangeRateLimited error
	EngineNotReady         error

	// Gateway and store classification.
	IdentityNotFound    error
	IdentityEmailExists error
	CredentialRejected  error
	TokenRejected       error
	ProfileNotFound     error
}

// Metrics carries the root metric ids the flows increment.
type Metrics struct {
	RegisterSuccess            int
	RegisterDuplicate          int
	RegisterCompensationFailed int
	RegisterAutoLoginFailed    int
	LoginSuccess               int
	LoginFailure               int
	LoginRateLimited           int
	LoginAccountIncomplete     int
	RefreshSuccess             int
	RefreshFailure             int
	EmailChangeInitiated       int
	EmailChangeCompleted       int
	EmailChangeInvalidToken    int
	EmailChangeExpired         int
	EmailChangeRateLimited     int
	EmailChangeCancelled       int
	EmailVerificationSent      int
	PasswordResetRequested     int
	Logout                     int
	NotificationFailed         int
}

// Events carries the audit event names the flows emit.
type Events struct {
	RegisterSuccess            string
	RegisterFailure            string
	RegisterDuplicate          string
	RegisterCompensationFailed string
	LoginSuccess               string
	LoginFailure               string
	LoginRateLimited           string
	RefreshSuccess             string
	RefreshInvalid             string
	EmailChangeInitiated       string
	EmailChangeRejected        string
	EmailChangeCompleted       string
	EmailChangeVerifyFailure   string
	EmailChangeCancelled       string
	EmailChangeRateLimited     string
	EmailVerificationRequest   string
	PasswordResetRequest       string
	Logout                     string
}

// Observer is the shared side-channel wiring: metrics, audit, logs and error
// reporting. Nil members are replaced with no-ops by [Observer.normalize].
type Observer struct {
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)
	Warn      func(msg string, args ...any)
	Error     func(msg string, args ...any)
	// Report forwards a failure to error tracking. The root policy decides
	// which errors are actually sent.
	Report func(ctx context.Context, op, userID string, err error, tags map[string]string)

	Metrics Metrics
	Events  Events
	Errors  Errors
}

func (o Observer) normalize() Observer {
	if o.MetricInc == nil {
		o.MetricInc = func(int) {}
	}
	if o.EmitAudit == nil {
		o.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if o.Warn == nil {
		o.Warn = func(string, ...any) {}
	}
	if o.Error == nil {
		o.Error = func(string, ...any) {}
	}
	if o.Report == nil {
		o.Report = func(context.Context, string, string, error, map[string]string) {}
	}
	return o
}

// TokenRecord is the flow-local session token pair.
type TokenRecord struct {
	IDToken      string
	RefreshToken string
	UID          string
	ExpiresIn    time.Duration
}

// PendingChangeRecord is the flow-local pending email change.
type PendingChangeRecord struct {
	Email       string
	TokenHash   string
	RequestedAt time.Time
}

// ProfileRecord is the flow-local profile view.
type ProfileRecord struct {
	UID         string
	Email       string
	DisplayName string
	FirstName   string
	LastName    string
	Pending     *PendingChangeRecord
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityRecord is the flow-local view of a provider identity.
type IdentityRecord struct {
	UID           string
	Email         string
	EmailVerified bool
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return time.Now
}
