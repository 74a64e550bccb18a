package flows

import (
	"context"
	"errors"
	"fmt"
)

// LoginResult carries the hydrated profile and the issued tokens.
type LoginResult struct {
	Profile ProfileRecord
	Tokens  TokenRecord
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Observer

	ClientIP func(context.Context) string

	// CheckRate returns Errors.LoginRateLimited when the email or ip is over
	// budget. Nil disables rate limiting.
	CheckRate     func(ctx context.Context, email, ip string) error
	RecordFailure func(ctx context.Context, email, ip string) error
	ResetRate     func(ctx context.Context, email string) error

	VerifyPassword      func(ctx context.Context, email, password string) (string, error)
	MintCustomToken     func(ctx context.Context, uid string) (string, error)
	ExchangeCustomToken func(ctx context.Context, customToken string) (TokenRecord, error)
	LoadProfile         func(ctx context.Context, uid string) (ProfileRecord, error)
}

// RunLogin verifies the password, issues a session and hydrates the profile.
// Wrong passwords and unknown emails both return Errors.InvalidCredentials.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	obs := deps.Observer.normalize()
	if deps.VerifyPassword == nil || deps.MintCustomToken == nil ||
		deps.ExchangeCustomToken == nil || deps.LoadProfile == nil {
		return nil, obs.Errors.EngineNotReady
	}

	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", obs.Errors.Validation)
	}
	normalized, ok := normalizeEmail(email)
	if !ok {
		normalized = email
	}

	ip := ""
	if deps.ClientIP != nil {
		ip = deps.ClientIP(ctx)
	}

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, normalized, ip); err != nil {
			if errors.Is(err, obs.Errors.LoginRateLimited) {
				obs.MetricInc(obs.Metrics.LoginRateLimited)
				obs.EmitAudit(ctx, obs.Events.LoginRateLimited, false, "", err, nil)
				return nil, obs.Errors.LoginRateLimited
			}
			obs.MetricInc(obs.Metrics.LoginFailure)
			obs.Warn("goIdentity: login limiter unavailable", "error", err)
			obs.Report(ctx, "login.rate_limit", "", err, nil)
			obs.EmitAudit(ctx, obs.Events.LoginFailure, false, "", obs.Errors.AuthenticationFailed, func() map[string]string {
				return map[string]string{"reason": "limiter_unavailable"}
			})
			return nil, obs.Errors.AuthenticationFailed
		}
	}

	uid, err := deps.VerifyPassword(ctx, normalized, password)
	password = ""
	if err != nil {
		obs.MetricInc(obs.Metrics.LoginFailure)
		if errors.Is(err, obs.Errors.CredentialRejected) {
			if deps.RecordFailure != nil {
				if rerr := deps.RecordFailure(ctx, normalized, ip); rerr != nil && !errors.Is(rerr, obs.Errors.LoginRateLimited) {
					obs.Warn("goIdentity: login failure not recorded", "error", rerr)
				}
			}
			obs.EmitAudit(ctx, obs.Events.LoginFailure, false, "", obs.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "credentials"}
			})
			return nil, obs.Errors.InvalidCredentials
		}
		return nil, loginProviderFailure(ctx, obs, "", "verify_password", err)
	}

	custom, err := deps.MintCustomToken(ctx, uid)
	if err != nil {
		obs.MetricInc(obs.Metrics.LoginFailure)
		return nil, loginProviderFailure(ctx, obs, uid, "mint_custom_token", err)
	}
	tokens, err := deps.ExchangeCustomToken(ctx, custom)
	if err != nil {
		obs.MetricInc(obs.Metrics.LoginFailure)
		return nil, loginProviderFailure(ctx, obs, uid, "exchange_custom_token", err)
	}
	if tokens.UID == "" {
		tokens.UID = uid
	}
	if tokens.UID != uid {
		obs.MetricInc(obs.Metrics.LoginFailure)
		return nil, loginProviderFailure(ctx, obs, uid, "exchange_custom_token",
			fmt.Errorf("session uid %q does not match verified uid", tokens.UID))
	}

	profile, err := deps.LoadProfile(ctx, uid)
	if err != nil {
		obs.MetricInc(obs.Metrics.LoginFailure)
		if errors.Is(err, obs.Errors.ProfileNotFound) {
			obs.MetricInc(obs.Metrics.LoginAccountIncomplete)
			obs.Error("goIdentity: identity has no profile", "uid", uid)
			obs.Report(ctx, "login.load_profile", uid, obs.Errors.AccountIncomplete, nil)
			obs.EmitAudit(ctx, obs.Events.LoginFailure, false, uid, obs.Errors.AccountIncomplete, nil)
			return nil, obs.Errors.AccountIncomplete
		}
		obs.Error("goIdentity: profile load failed", "uid", uid, "error", err)
		obs.Report(ctx, "login.load_profile", uid, err, nil)
		obs.EmitAudit(ctx, obs.Events.LoginFailure, false, uid, obs.Errors.Downstream, nil)
		return nil, fmt.Errorf("%w: load profile: %w", obs.Errors.Downstream, err)
	}

	if deps.ResetRate != nil {
		if err := deps.ResetRate(ctx, normalized); err != nil {
			obs.Warn("goIdentity: login limiter reset failed", "uid", uid, "error", err)
		}
	}

	obs.MetricInc(obs.Metrics.LoginSuccess)
	obs.EmitAudit(ctx, obs.Events.LoginSuccess, true, uid, nil, nil)

	return &LoginResult{Profile: profile, Tokens: tokens}, nil
}

func loginProviderFailure(ctx context.Context, obs Observer, uid, step string, err error) error {
	obs.Warn("goIdentity: login provider failure", "uid", uid, "step", step, "error", err)
	obs.Report(ctx, "login."+step, uid, err, nil)
	obs.EmitAudit(ctx, obs.Events.LoginFailure, false, uid, obs.Errors.AuthenticationFailed, func() map[string]string {
		return map[string]string{"reason": step}
	})
	return obs.Errors.AuthenticationFailed
}
