package goIdentity

import (
	"context"
	"errors"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventRegisterDuplicate        = "register_duplicate"
	auditEventRegisterCompensation     = "register_compensation_failed"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventEmailChangeInitiated     = "email_change_initiated"
	auditEventEmailChangeRejected      = "email_change_rejected"
	auditEventEmailChangeCompleted     = "email_change_completed"
	auditEventEmailChangeVerifyFailure = "email_change_verify_failure"
	auditEventEmailChangeCancelled     = "email_change_cancelled"
	auditEventEmailChangeRateLimited   = "email_change_rate_limited"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventLogout                   = "logout"
)

// AuditErrorCode is the stable error classification written to
// [AuditEvent].Error. Raw error strings are never recorded.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAuthentication     AuditErrorCode = "authentication_failed"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrEmailInUse         AuditErrorCode = "email_in_use"
	auditErrAccountIncomplete  AuditErrorCode = "account_incomplete"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrNoPendingChange    AuditErrorCode = "no_pending_change"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp: e.clock().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthentication
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrEmailChangeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrEmailInUse):
		return auditErrEmailInUse
	case errors.Is(err, ErrAccountIncomplete):
		return auditErrAccountIncomplete
	case errors.Is(err, ErrRefreshToken):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrNoPendingChange):
		return auditErrNoPendingChange
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrDownstream):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
