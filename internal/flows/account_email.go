package flows

import (
	"context"
	"errors"
	"fmt"
)

// AccountEmailDeps captures the verification, password reset and logout
// dependencies.
type AccountEmailDeps struct {
	Observer

	LoadProfile func(ctx context.Context, uid string) (ProfileRecord, error)
	// SendVerification and SendPasswordReset queue link generation and
	// delivery; they must not block and report false when the queue refused
	// the job.
	SendVerification  func(ctx context.Context, uid, email string) bool
	SendPasswordReset func(ctx context.Context, email string) bool

	RevokeRefreshTokens func(ctx context.Context, uid string) error
}

// RunSendEmailVerification queues a verification link for uid's current
// email.
func RunSendEmailVerification(ctx context.Context, uid string, deps AccountEmailDeps) error {
	obs := deps.Observer.normalize()
	if deps.LoadProfile == nil || deps.SendVerification == nil {
		return obs.Errors.EngineNotReady
	}

	profile, err := deps.LoadProfile(ctx, uid)
	if err != nil {
		if errors.Is(err, obs.Errors.ProfileNotFound) {
			obs.Report(ctx, "verify_email.load_profile", uid, obs.Errors.AccountIncomplete, nil)
			return obs.Errors.AccountIncomplete
		}
		obs.Report(ctx, "verify_email.load_profile", uid, err, nil)
		return fmt.Errorf("%w: load profile: %w", obs.Errors.Downstream, err)
	}

	queued := deps.SendVerification(ctx, uid, profile.Email)
	if queued {
		obs.MetricInc(obs.Metrics.EmailVerificationSent)
	} else {
		obs.Warn("goIdentity: verification email dropped", "uid", uid)
	}
	obs.EmitAudit(ctx, obs.Events.EmailVerificationRequest, queued, uid, nil, nil)
	return nil
}

// RunRequestPasswordReset queues a reset link for email. It never reports
// whether the address exists; only a malformed address is rejected.
func RunRequestPasswordReset(ctx context.Context, email string, deps AccountEmailDeps) error {
	obs := deps.Observer.normalize()
	if deps.SendPasswordReset == nil {
		return obs.Errors.EngineNotReady
	}

	normalized, ok := normalizeEmail(email)
	if !ok {
		return fmt.Errorf("%w: email is invalid", obs.Errors.Validation)
	}

	queued := deps.SendPasswordReset(ctx, normalized)
	if !queued {
		obs.Warn("goIdentity: password reset email dropped")
	}
	obs.MetricInc(obs.Metrics.PasswordResetRequested)
	obs.EmitAudit(ctx, obs.Events.PasswordResetRequest, queued, "", nil, func() map[string]string {
		return map[string]string{"domain": emailDomain(normalized)}
	})
	return nil
}

// RunLogout revokes uid's refresh tokens. Revocation is best-effort: the
// caller always clears its cookie.
func RunLogout(ctx context.Context, uid string, deps AccountEmailDeps) error {
	obs := deps.Observer.normalize()
	if deps.RevokeRefreshTokens == nil {
		return obs.Errors.EngineNotReady
	}

	if err := deps.RevokeRefreshTokens(ctx, uid); err != nil {
		obs.Warn("goIdentity: refresh token revocation failed", "uid", uid, "error", err)
		obs.Report(ctx, "logout.revoke", uid, err, nil)
		obs.EmitAudit(ctx, obs.Events.Logout, false, uid, obs.Errors.Downstream, nil)
		return nil
	}

	obs.MetricInc(obs.Metrics.Logout)
	obs.EmitAudit(ctx, obs.Events.Logout, true, uid, nil, nil)
	return nil
}
