package flows

import (
	"context"
	"errors"
)

// RefreshResult carries the rotated tokens and the profile.
type RefreshResult struct {
	Profile ProfileRecord
	Tokens  TokenRecord
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Observer

	ExchangeRefreshToken func(ctx context.Context, refreshToken string) (TokenRecord, error)
	LoadProfile          func(ctx context.Context, uid string) (ProfileRecord, error)
}

// RunRefresh redeems refreshToken for a new pair. Every failure, including a
// provider timeout or a missing profile, returns Errors.RefreshToken so the
// caller clears the cookie and forces a new login.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*RefreshResult, error) {
	obs := deps.Observer.normalize()
	if deps.ExchangeRefreshToken == nil || deps.LoadProfile == nil {
		return nil, obs.Errors.EngineNotReady
	}

	if refreshToken == "" {
		obs.MetricInc(obs.Metrics.RefreshFailure)
		return nil, obs.Errors.RefreshToken
	}

	tokens, err := deps.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		obs.MetricInc(obs.Metrics.RefreshFailure)
		reason := "rejected"
		if !errors.Is(err, obs.Errors.TokenRejected) {
			reason = "provider"
			obs.Warn("goIdentity: refresh exchange failed", "error", err)
			obs.Report(ctx, "refresh.exchange", "", err, nil)
		}
		obs.EmitAudit(ctx, obs.Events.RefreshInvalid, false, "", obs.Errors.RefreshToken, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, obs.Errors.RefreshToken
	}
	if tokens.UID == "" {
		obs.MetricInc(obs.Metrics.RefreshFailure)
		obs.Warn("goIdentity: refresh exchange returned no uid")
		obs.EmitAudit(ctx, obs.Events.RefreshInvalid, false, "", obs.Errors.RefreshToken, func() map[string]string {
			return map[string]string{"reason": "no_uid"}
		})
		return nil, obs.Errors.RefreshToken
	}

	// The presented token is already consumed at this point.
	profile, err := deps.LoadProfile(ctx, tokens.UID)
	if err != nil {
		obs.MetricInc(obs.Metrics.RefreshFailure)
		reason := "profile_missing"
		if !errors.Is(err, obs.Errors.ProfileNotFound) {
			reason = "profile_unavailable"
			obs.Error("goIdentity: refresh profile load failed", "uid", tokens.UID, "error", err)
			obs.Report(ctx, "refresh.load_profile", tokens.UID, err, nil)
		} else {
			obs.Report(ctx, "refresh.load_profile", tokens.UID, obs.Errors.AccountIncomplete, nil)
		}
		obs.EmitAudit(ctx, obs.Events.RefreshInvalid, false, tokens.UID, obs.Errors.RefreshToken, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return nil, obs.Errors.RefreshToken
	}

	obs.MetricInc(obs.Metrics.RefreshSuccess)
	obs.EmitAudit(ctx, obs.Events.RefreshSuccess, true, tokens.UID, nil, nil)

	return &RefreshResult{Profile: profile, Tokens: tokens}, nil
}
