package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// Register describes the register operation and its observable behavior.
//
// Register creates the provider identity and the local profile, then tries to
// log the new account in. A uniqueness conflict returns [ErrDuplicateAccount]
// and removes the identity again. When the automatic login fails the account
// still exists: the result carries no tokens and the "please log in" message.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	res, err := e.flow.Register(ctx, internalflows.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Profile.DisplayName,
		FirstName:   req.Profile.FirstName,
		LastName:    req.Profile.LastName,
	})
	if err != nil {
		return nil, err
	}

	out := &RegisterResult{
		Profile: fromFlowProfile(res.Profile),
		Message: e.config.Messages.Registered,
	}
	if res.Tokens != nil {
		tokens := fromFlowTokens(*res.Tokens)
		out.Tokens = &tokens
	} else {
		out.Message = e.config.Messages.RegisteredNoSession
	}
	return out, nil
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		Observer:          e.flowObserver(),
		Now:               e.clock,
		MinPasswordLength: e.config.Password.MinLength,
		MaxPasswordLength: e.config.Password.MaxLength,
		CreateIdentity: func(ctx context.Context, email, password, displayName string) (string, error) {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			id, err := e.gateway.CreateIdentity(gctx, NewIdentity{
				Email:         email,
				Password:      password,
				DisplayName:   displayName,
				EmailVerified: false,
			})
			if err != nil {
				return "", err
			}
			return id.UID, nil
		},
		DeleteIdentity: func(ctx context.Context, uid string) error {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			return e.gateway.DeleteIdentity(gctx, uid)
		},
		CreateProfile: func(ctx context.Context, p internalflows.ProfileRecord) error {
			return e.profiles.CreateProfile(ctx, fromFlowProfile(p))
		},
		MintCustomToken:     e.mintCustomToken,
		ExchangeCustomToken: e.exchangeCustomToken,
		SendVerification: func(ctx context.Context, uid, email string) {
			e.queueVerificationEmail(ctx, uid, email)
		},
	}
}
