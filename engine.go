package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/claims"
	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/outbound"
)

// Engine defines a public type used by goIdentity APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config             Config
	gateway            CredentialGateway
	profiles           ProfileStore
	notifier           Notifier
	reporter           ErrorReporter
	logger             *slog.Logger
	now                func() time.Time
	loginLimiter       *limiters.LoginLimiter
	emailChangeLimiter *limiters.EmailChangeLimiter
	outbound           *outbound.Dispatcher
	audit              *internalaudit.Dispatcher
	metrics            *Metrics
	flow               internalflows.Service
}

// Close drains queued notifications and audit events. The Engine must not be
// used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.outbound != nil {
		e.outbound.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotificationsDropped returns the number of fire-and-forget notifications
// that were never queued.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.outbound == nil {
		return 0
	}
	return e.outbound.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ProductionMode reports whether the Engine runs with production checks.
func (e *Engine) ProductionMode() bool {
	return e != nil && e.config.ProductionMode
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate validates a bearer ID token and returns the normalized
// caller. A missing or rejected token returns [ErrUnauthorized]; a provider
// failure or an unrecognized claim shape returns [ErrAuthenticationFailed].
func (e *Engine) Authenticate(ctx context.Context, idToken string) (*Identity, error) {
	if e == nil || e.gateway == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	if idToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthorized
	}

	gctx, cancel := e.gatewayContext(ctx)
	raw, err := e.gateway.VerifyIDToken(gctx, idToken)
	cancel()
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, ErrTokenRejected) {
			return nil, ErrUnauthorized
		}
		e.logger.Warn("goIdentity: id token verification failed", "error", err)
		e.report(ctx, "authenticate.verify", "", err, nil)
		return nil, ErrAuthenticationFailed
	}

	id, err := claims.Normalize(raw)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		e.logger.Warn("goIdentity: unrecognized id token claims", "error", err)
		e.report(ctx, "authenticate.claims", "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err), nil)
		return nil, ErrAuthenticationFailed
	}

	return &id, nil
}

// GetProfile returns the profile of an authenticated uid. A missing profile
// returns [ErrAccountIncomplete].
func (e *Engine) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	if e == nil || e.profiles == nil {
		return nil, ErrEngineNotReady
	}
	p, err := e.profiles.GetProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			e.logger.Error("goIdentity: identity has no profile", "uid", uid)
			e.report(ctx, "profile.get", uid, ErrAccountIncomplete, nil)
			return nil, ErrAccountIncomplete
		}
		e.report(ctx, "profile.get", uid, err, nil)
		return nil, fmt.Errorf("%w: load profile: %w", ErrDownstream, err)
	}
	return &p, nil
}

// gatewayContext bounds one identity provider call.
func (e *Engine) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Gateway.Timeout)
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) newFlowService() internalflows.Service {
	return internalflows.New(internalflows.Deps{
		Register:     e.registerFlowDeps(),
		Login:        e.loginFlowDeps(),
		Refresh:      e.refreshFlowDeps(),
		EmailChange:  e.emailChangeFlowDeps(),
		AccountEmail: e.accountEmailFlowDeps(),
	})
}

func (e *Engine) flowObserver() internalflows.Observer {
	return internalflows.Observer{
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
		Error:     e.logger.Error,
		Report:    e.report,
		Metrics: internalflows.Metrics{
			RegisterSuccess:            int(MetricRegisterSuccess),
			RegisterDuplicate:          int(MetricRegisterDuplicate),
			RegisterCompensationFailed: int(MetricRegisterCompensationFailed),
			RegisterAutoLoginFailed:    int(MetricRegisterAutoLoginFailed),
			LoginSuccess:               int(MetricLoginSuccess),
			LoginFailure:               int(MetricLoginFailure),
			LoginRateLimited:           int(MetricLoginRateLimited),
			LoginAccountIncomplete:     int(MetricLoginAccountIncomplete),
			RefreshSuccess:             int(MetricRefreshSuccess),
			RefreshFailure:             int(MetricRefreshFailure),
			EmailChangeInitiated:       int(MetricEmailChangeInitiated),
			EmailChangeCompleted:       int(MetricEmailChangeCompleted),
			EmailChangeInvalidToken:    int(MetricEmailChangeInvalidToken),
			EmailChangeExpired:         int(MetricEmailChangeExpired),
			EmailChangeRateLimited:     int(MetricEmailChangeRateLimited),
			EmailChangeCancelled:       int(MetricEmailChangeCancelled),
			EmailVerificationSent:      int(MetricEmailVerificationSent),
			PasswordResetRequested:     int(MetricPasswordResetRequested),
			Logout:                     int(MetricLogout),
			NotificationFailed:         int(MetricNotificationFailed),
		},
		Events: internalflows.Events{
			RegisterSuccess:            auditEventRegisterSuccess,
			RegisterFailure:            auditEventRegisterFailure,
			RegisterDuplicate:          auditEventRegisterDuplicate,
			RegisterCompensationFailed: auditEventRegisterCompensation,
			LoginSuccess:               auditEventLoginSuccess,
			LoginFailure:               auditEventLoginFailure,
			LoginRateLimited:           auditEventLoginRateLimited,
			RefreshSuccess:             auditEventRefreshSuccess,
			RefreshInvalid:             auditEventRefreshInvalid,
			EmailChangeInitiated:       auditEventEmailChangeInitiated,
			EmailChangeRejected:        auditEventEmailChangeRejected,
			EmailChangeCompleted:       auditEventEmailChangeCompleted,
			EmailChangeVerifyFailure:   auditEventEmailChangeVerifyFailure,
			EmailChangeCancelled:       auditEventEmailChangeCancelled,
			EmailChangeRateLimited:     auditEventEmailChangeRateLimited,
			EmailVerificationRequest:   auditEventEmailVerificationRequest,
			PasswordResetRequest:       auditEventPasswordResetRequest,
			Logout:                     auditEventLogout,
		},
		Errors: internalflows.Errors{
			Validation:             ErrValidation,
			InvalidCredentials:     ErrInvalidCredentials,
			AuthenticationFailed:   ErrAuthenticationFailed,
			DuplicateAccount:       ErrDuplicateAccount,
			EmailInUse:             ErrEmailInUse,
			AccountIncomplete:      ErrAccountIncomplete,
			RefreshToken:           ErrRefreshToken,
			NoPendingChange:        ErrNoPendingChange,
			InvalidToken:           ErrInvalidToken,
			TokenExpired:           ErrTokenExpired,
			Downstream:             ErrDownstream,
			LoginRateLimited:       ErrLoginRateLimited,
			EmailChangeRateLimited: ErrEmailChangeRateLimited,
			EngineNotReady:         ErrEngineNotReady,
			IdentityNotFound:       ErrIdentityNotFound,
			IdentityEmailExists:    ErrIdentityEmailExists,
			CredentialRejected:     ErrCredentialRejected,
			TokenRejected:          ErrTokenRejected,
			ProfileNotFound:        ErrProfileNotFound,
		},
	}
}

/*
====================================
FLOW RECORD CONVERSION
====================================
*/

func toFlowTokens(t SessionTokens) internalflows.TokenRecord {
	return internalflows.TokenRecord{
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		UID:          t.UID,
		ExpiresIn:    t.ExpiresIn,
	}
}

func fromFlowTokens(t internalflows.TokenRecord) SessionTokens {
	return SessionTokens{
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
		UID:          t.UID,
		ExpiresIn:    t.ExpiresIn,
	}
}

func toFlowProfile(p Profile) internalflows.ProfileRecord {
	out := internalflows.ProfileRecord{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.PendingEmailChange != nil {
		out.Pending = &internalflows.PendingChangeRecord{
			Email:       p.PendingEmailChange.Email,
			TokenHash:   p.PendingEmailChange.TokenHash,
			RequestedAt: p.PendingEmailChange.RequestedAt,
		}
	}
	return out
}

func fromFlowProfile(p internalflows.ProfileRecord) Profile {
	out := Profile{
		UID:         p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Pending != nil {
		out.PendingEmailChange = &PendingEmailChange{
			Email:       p.Pending.Email,
			TokenHash:   p.Pending.TokenHash,
			RequestedAt: p.Pending.RequestedAt,
		}
	}
	return out
}

func (e *Engine) loadFlowProfile(ctx context.Context, uid string) (internalflows.ProfileRecord, error) {
	p, err := e.profiles.GetProfile(ctx, uid)
	if err != nil {
		return internalflows.ProfileRecord{}, err
	}
	return toFlowProfile(p), nil
}

func (e *Engine) exchangeCustomToken(ctx context.Context, customToken string) (internalflows.TokenRecord, error) {
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	tokens, err := e.gateway.ExchangeCustomToken(gctx, customToken)
	if err != nil {
		return internalflows.TokenRecord{}, err
	}
	return toFlowTokens(tokens), nil
}

func (e *Engine) mintCustomToken(ctx context.Context, uid string) (string, error) {
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	return e.gateway.MintCustomToken(gctx, uid)
}

func (e *Engine) verifyPassword(ctx context.Context, email, password string) (string, error) {
	gctx, cancel := e.gatewayContext(ctx)
	defer cancel()
	return e.gateway.VerifyPassword(gctx, email, password)
}
