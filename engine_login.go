package goIdentity

import (
	"context"
	"errors"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
)

// Login describes the login operation and its observable behavior.
//
// Login returns [ErrInvalidCredentials] for a wrong password and an unknown
// email alike, [ErrAuthenticationFailed] for any other provider failure, and
// [ErrAccountIncomplete] when the identity has no local profile.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Profile: fromFlowProfile(res.Profile),
		Tokens:  fromFlowTokens(res.Tokens),
	}, nil
}

// Refresh redeems a refresh token for a new pair. Every failure returns
// [ErrRefreshToken]; the presented token must not be reused.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		Profile: fromFlowProfile(res.Profile),
		Tokens:  fromFlowTokens(res.Tokens),
	}, nil
}

// Logout revokes the refresh tokens of uid. Revocation failures are logged
// and reported, never returned.
func (e *Engine) Logout(ctx context.Context, uid string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.Logout(ctx, uid)
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		Observer:            e.flowObserver(),
		ClientIP:            clientIPFromContext,
		VerifyPassword:      e.verifyPassword,
		MintCustomToken:     e.mintCustomToken,
		ExchangeCustomToken: e.exchangeCustomToken,
		LoadProfile:         e.loadFlowProfile,
	}

	if e.loginLimiter != nil {
		deps.CheckRate = func(ctx context.Context, email, ip string) error {
			return mapLoginLimiterError(e.loginLimiter.Check(ctx, email, ip))
		}
		deps.RecordFailure = func(ctx context.Context, email, ip string) error {
			return mapLoginLimiterError(e.loginLimiter.RecordFailure(ctx, email, ip))
		}
		deps.ResetRate = func(ctx context.Context, email string) error {
			return mapLoginLimiterError(e.loginLimiter.Reset(ctx, email))
		}
	}

	return deps
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		Observer: e.flowObserver(),
		ExchangeRefreshToken: func(ctx context.Context, refreshToken string) (internalflows.TokenRecord, error) {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			tokens, err := e.gateway.ExchangeRefreshToken(gctx, refreshToken)
			if err != nil {
				return internalflows.TokenRecord{}, err
			}
			return toFlowTokens(tokens), nil
		},
		LoadProfile: e.loadFlowProfile,
	}
}

func mapLoginLimiterError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrLoginRateLimited) {
		return ErrLoginRateLimited
	}
	return err
}
