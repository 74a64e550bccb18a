package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal/saga"
)

const (
	emailChangeStepIdentity = "update_identity"
	emailChangeStepProfile  = "commit_profile"
)

// EmailChangeTicket describes an accepted initiate.
type EmailChangeTicket struct {
	PendingEmail string
	ExpiresAt    time.Time
}

// EmailChangeDeps captures the email change state machine dependencies.
type EmailChangeDeps struct {
	Observer

	Now             func() time.Time
	TokenTTL        time.Duration
	RequirePassword bool

	// CheckInitiate and CheckVerify count one attempt and return
	// Errors.EmailChangeRateLimited when over budget. Nil disables the check.
	CheckInitiate func(ctx context.Context, uid string) error
	CheckVerify   func(ctx context.Context, uid string) error
	ResetVerify   func(ctx context.Context, uid string) error

	NewCode  func() (string, error)
	HashCode func(uid, code string) string
	// EqualHash compares two digests in constant time.
	EqualHash func(a, b string) bool

	LoadProfile    func(ctx context.Context, uid string) (ProfileRecord, error)
	SavePending    func(ctx context.Context, uid string, pending PendingChangeRecord) error
	ClearPending   func(ctx context.Context, uid string) error
	CommitEmail    func(ctx context.Context, uid, email string) (ProfileRecord, error)
	VerifyPassword func(ctx context.Context, email, password string) (string, error)

	LookupIdentityByEmail func(ctx context.Context, email string) (IdentityRecord, error)
	GetIdentity           func(ctx context.Context, uid string) (IdentityRecord, error)
	SetIdentityEmail      func(ctx context.Context, uid, email string, verified bool) error

	// SendCode delivers the verification code and is awaited.
	SendCode func(ctx context.Context, uid, email, code string) error
	// NotifyChanged queues the completion notices; it must not block.
	NotifyChanged func(ctx context.Context, uid, oldEmail, newEmail string)
}

func (d EmailChangeDeps) ready() bool {
	return d.LoadProfile != nil && d.SavePending != nil && d.ClearPending != nil &&
		d.CommitEmail != nil && d.LookupIdentityByEmail != nil && d.GetIdentity != nil &&
		d.SetIdentityEmail != nil && d.SendCode != nil && d.NewCode != nil &&
		d.HashCode != nil && d.EqualHash != nil &&
		(!d.RequirePassword || d.VerifyPassword != nil)
}

// RunInitiateEmailChange starts a change to newEmail for uid. The code is
// delivered before anything is persisted; a later initiate replaces an
// earlier pending request.
func RunInitiateEmailChange(ctx context.Context, uid, newEmail, password string, deps EmailChangeDeps) (*EmailChangeTicket, error) {
	obs := deps.Observer.normalize()
	if !deps.ready() {
		return nil, obs.Errors.EngineNotReady
	}
	now := nowOrDefault(deps.Now)

	email, ok := normalizeEmail(newEmail)
	if !ok {
		return nil, fmt.Errorf("%w: new email is invalid", obs.Errors.Validation)
	}
	if deps.RequirePassword && password == "" {
		return nil, fmt.Errorf("%w: password is required", obs.Errors.Validation)
	}

	if deps.CheckInitiate != nil {
		if err := deps.CheckInitiate(ctx, uid); err != nil {
			return nil, emailChangeThrottleFailure(ctx, obs, uid, "initiate", err)
		}
	}

	profile, err := deps.LoadProfile(ctx, uid)
	if err != nil {
		return nil, emailChangeProfileFailure(ctx, obs, uid, "initiate", err)
	}
	if sameEmail(profile.Email, email) {
		return nil, fmt.Errorf("%w: new email must differ from the current email", obs.Errors.Validation)
	}

	if deps.RequirePassword {
		owner, err := deps.VerifyPassword(ctx, profile.Email, password)
		password = ""
		if err != nil {
			if errors.Is(err, obs.Errors.CredentialRejected) {
				obs.EmitAudit(ctx, obs.Events.EmailChangeRejected, false, uid, obs.Errors.InvalidCredentials, func() map[string]string {
					return map[string]string{"reason": "password"}
				})
				return nil, obs.Errors.InvalidCredentials
			}
			obs.Warn("goIdentity: email change password check failed", "uid", uid, "error", err)
			obs.Report(ctx, "email_change.verify_password", uid, err, nil)
			return nil, obs.Errors.AuthenticationFailed
		}
		if owner != uid {
			obs.EmitAudit(ctx, obs.Events.EmailChangeRejected, false, uid, obs.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "owner_mismatch"}
			})
			return nil, obs.Errors.InvalidCredentials
		}
	}

	if _, err := deps.LookupIdentityByEmail(ctx, email); err == nil {
		obs.EmitAudit(ctx, obs.Events.EmailChangeRejected, false, uid, obs.Errors.EmailInUse, nil)
		return nil, obs.Errors.EmailInUse
	} else if !errors.Is(err, obs.Errors.IdentityNotFound) {
		obs.Warn("goIdentity: email change lookup failed", "uid", uid, "error", err)
		obs.Report(ctx, "email_change.lookup", uid, err, nil)
		return nil, fmt.Errorf("%w: identity lookup: %w", obs.Errors.Downstream, err)
	}

	code, err := deps.NewCode()
	if err != nil {
		obs.Report(ctx, "email_change.new_code", uid, err, nil)
		return nil, fmt.Errorf("%w: code generation: %w", obs.Errors.Downstream, err)
	}

	if err := deps.SendCode(ctx, uid, email, code); err != nil {
		obs.MetricInc(obs.Metrics.NotificationFailed)
		obs.Error("goIdentity: email change code delivery failed", "uid", uid, "error", err)
		obs.Report(ctx, "email_change.send_code", uid, err, nil)
		obs.EmitAudit(ctx, obs.Events.EmailChangeRejected, false, uid, obs.Errors.Downstream, func() map[string]string {
			return map[string]string{"reason": "delivery"}
		})
		return nil, fmt.Errorf("%w: code delivery: %w", obs.Errors.Downstream, err)
	}

	requestedAt := now().UTC()
	pending := PendingChangeRecord{
		Email:       email,
		TokenHash:   deps.HashCode(uid, code),
		RequestedAt: requestedAt,
	}
	code = ""
	if err := deps.SavePending(ctx, uid, pending); err != nil {
		obs.Error("goIdentity: email change persist failed", "uid", uid, "error", err)
		obs.Report(ctx, "email_change.save_pending", uid, err, nil)
		return nil, fmt.Errorf("%w: persist pending change: %w", obs.Errors.Downstream, err)
	}

	if deps.ResetVerify != nil {
		if err := deps.ResetVerify(ctx, uid); err != nil {
			obs.Warn("goIdentity: email change verify budget reset failed", "uid", uid, "error", err)
		}
	}

	obs.MetricInc(obs.Metrics.EmailChangeInitiated)
	obs.EmitAudit(ctx, obs.Events.EmailChangeInitiated, true, uid, nil, func() map[string]string {
		return map[string]string{"new_domain": emailDomain(email)}
	})

	return &EmailChangeTicket{
		PendingEmail: email,
		ExpiresAt:    requestedAt.Add(deps.TokenTTL),
	}, nil
}

// RunVerifyEmailChange completes the pending change when code matches.
// Checks run in order: pending request, code, expiry.
func RunVerifyEmailChange(ctx context.Context, uid, code string, deps EmailChangeDeps) (*ProfileRecord, error) {
	obs := deps.Observer.normalize()
	if !deps.ready() {
		return nil, obs.Errors.EngineNotReady
	}
	now := nowOrDefault(deps.Now)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: verification token is required", obs.Errors.Validation)
	}

	if deps.CheckVerify != nil {
		if err := deps.CheckVerify(ctx, uid); err != nil {
			return nil, emailChangeThrottleFailure(ctx, obs, uid, "verify", err)
		}
	}

	profile, err := deps.LoadProfile(ctx, uid)
	if err != nil {
		return nil, emailChangeProfileFailure(ctx, obs, uid, "verify", err)
	}

	pending := profile.Pending
	if pending == nil || pending.Email == "" || pending.TokenHash == "" {
		obs.EmitAudit(ctx, obs.Events.EmailChangeVerifyFailure, false, uid, obs.Errors.NoPendingChange, nil)
		return nil, obs.Errors.NoPendingChange
	}

	if !deps.EqualHash(deps.HashCode(uid, code), pending.TokenHash) {
		obs.MetricInc(obs.Metrics.EmailChangeInvalidToken)
		obs.EmitAudit(ctx, obs.Events.EmailChangeVerifyFailure, false, uid, obs.Errors.InvalidToken, nil)
		return nil, obs.Errors.InvalidToken
	}

	if now().Sub(pending.RequestedAt) > deps.TokenTTL {
		if err := deps.ClearPending(ctx, uid); err != nil {
			obs.Error("goIdentity: expired email change not cleared", "uid", uid, "error", err)
			obs.Report(ctx, "email_change.clear_expired", uid, err, nil)
		}
		obs.MetricInc(obs.Metrics.EmailChangeExpired)
		obs.EmitAudit(ctx, obs.Events.EmailChangeVerifyFailure, false, uid, obs.Errors.TokenExpired, nil)
		return nil, obs.Errors.TokenExpired
	}

	oldEmail := profile.Email
	newEmail := pending.Email

	var previous IdentityRecord
	var committed ProfileRecord
	err = saga.Run(ctx, saga.Options{
		ShouldCompensate: func(step string, _ error) bool {
			return step == emailChangeStepProfile
		},
		OnCompensationFailure: func(ctx context.Context, failure *saga.CompensationError) {
			obs.Error("goIdentity: identity email not restored, identity and profile diverge",
				"uid", uid,
				"error", failure.Err,
			)
			obs.Report(ctx, "email_change.compensate", uid, failure, map[string]string{
				"diverged_uid": uid,
			})
		},
	},
		saga.Step{
			Name: emailChangeStepIdentity,
			Action: func(ctx context.Context) error {
				cur, err := deps.GetIdentity(ctx, uid)
				if err != nil {
					return err
				}
				previous = cur
				return deps.SetIdentityEmail(ctx, uid, newEmail, true)
			},
			Compensate: func(ctx context.Context) error {
				restore := previous.Email
				if restore == "" {
					restore = oldEmail
				}
				return deps.SetIdentityEmail(ctx, uid, restore, previous.EmailVerified)
			},
		},
		saga.Step{
			Name: emailChangeStepProfile,
			Action: func(ctx context.Context) error {
				p, err := deps.CommitEmail(ctx, uid, newEmail)
				if err != nil {
					return err
				}
				committed = p
				return nil
			},
		},
	)
	if err != nil {
		return nil, emailChangeCommitFailure(ctx, obs, uid, err, deps)
	}

	if deps.ResetVerify != nil {
		if err := deps.ResetVerify(ctx, uid); err != nil {
			obs.Warn("goIdentity: email change verify budget reset failed", "uid", uid, "error", err)
		}
	}

	if deps.NotifyChanged != nil {
		deps.NotifyChanged(ctx, uid, oldEmail, newEmail)
	}

	obs.MetricInc(obs.Metrics.EmailChangeCompleted)
	obs.EmitAudit(ctx, obs.Events.EmailChangeCompleted, true, uid, nil, func() map[string]string {
		return map[string]string{"new_domain": emailDomain(newEmail)}
	})

	return &committed, nil
}

// RunCancelEmailChange clears any pending request. Cancelling with nothing
// pending succeeds.
func RunCancelEmailChange(ctx context.Context, uid string, deps EmailChangeDeps) error {
	obs := deps.Observer.normalize()
	if deps.ClearPending == nil {
		return obs.Errors.EngineNotReady
	}
	if err := deps.ClearPending(ctx, uid); err != nil {
		obs.Report(ctx, "email_change.cancel", uid, err, nil)
		return fmt.Errorf("%w: clear pending change: %w", obs.Errors.Downstream, err)
	}
	obs.MetricInc(obs.Metrics.EmailChangeCancelled)
	obs.EmitAudit(ctx, obs.Events.EmailChangeCancelled, true, uid, nil, nil)
	return nil
}

func emailChangeThrottleFailure(ctx context.Context, obs Observer, uid, phase string, err error) error {
	if errors.Is(err, obs.Errors.EmailChangeRateLimited) {
		obs.MetricInc(obs.Metrics.EmailChangeRateLimited)
		obs.EmitAudit(ctx, obs.Events.EmailChangeRateLimited, false, uid, err, func() map[string]string {
			return map[string]string{"phase": phase}
		})
		return obs.Errors.EmailChangeRateLimited
	}
	obs.Warn("goIdentity: email change limiter unavailable", "uid", uid, "phase", phase, "error", err)
	obs.Report(ctx, "email_change.rate_limit", uid, err, nil)
	return fmt.Errorf("%w: rate limiter: %w", obs.Errors.Downstream, err)
}

func emailChangeProfileFailure(ctx context.Context, obs Observer, uid, phase string, err error) error {
	if errors.Is(err, obs.Errors.ProfileNotFound) {
		obs.Error("goIdentity: identity has no profile", "uid", uid, "phase", phase)
		obs.Report(ctx, "email_change."+phase, uid, obs.Errors.AccountIncomplete, nil)
		return obs.Errors.AccountIncomplete
	}
	obs.Report(ctx, "email_change."+phase, uid, err, nil)
	return fmt.Errorf("%w: load profile: %w", obs.Errors.Downstream, err)
}

func emailChangeCommitFailure(ctx context.Context, obs Observer, uid string, err error, deps EmailChangeDeps) error {
	var stepErr *saga.StepError
	if !errors.As(err, &stepErr) {
		stepErr = &saga.StepError{Step: emailChangeStepIdentity, Err: err}
	}

	taken := (stepErr.Step == emailChangeStepIdentity && errors.Is(stepErr.Err, obs.Errors.IdentityEmailExists)) ||
		(stepErr.Step == emailChangeStepProfile && errors.Is(stepErr.Err, obs.Errors.DuplicateAccount))
	if taken {
		if cerr := deps.ClearPending(ctx, uid); cerr != nil {
			obs.Warn("goIdentity: unreachable email change not cleared", "uid", uid, "error", cerr)
		}
		obs.EmitAudit(ctx, obs.Events.EmailChangeVerifyFailure, false, uid, obs.Errors.EmailInUse, nil)
		return obs.Errors.EmailInUse
	}

	obs.Error("goIdentity: email change commit failed", "uid", uid, "step", stepErr.Step, "error", stepErr.Err)
	obs.Report(ctx, "email_change."+stepErr.Step, uid, stepErr.Err, nil)
	obs.EmitAudit(ctx, obs.Events.EmailChangeVerifyFailure, false, uid, obs.Errors.Downstream, func() map[string]string {
		return map[string]string{"step": stepErr.Step}
	})
	return fmt.Errorf("%w: %s: %w", obs.Errors.Downstream, stepErr.Step, stepErr.Err)
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
