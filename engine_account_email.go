package goIdentity

import (
	"context"
	"errors"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// SendEmailVerification queues a verification link for the current email of
// uid. Delivery happens in the background.
func (e *Engine) SendEmailVerification(ctx context.Context, uid string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.SendEmailVerification(ctx, uid)
}

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// RequestPasswordReset queues a reset link for email and never reveals
// whether the address exists. Only a malformed address is rejected, with
// [ErrValidation].
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	err := e.flow.RequestPasswordReset(ctx, email)
	if err != nil && !errors.Is(err, ErrValidation) {
		e.logger.Warn("goIdentity: password reset request failed", "error", err)
		return nil
	}
	return err
}

func (e *Engine) accountEmailFlowDeps() internalflows.AccountEmailDeps {
	return internalflows.AccountEmailDeps{
		Observer:          e.flowObserver(),
		LoadProfile:       e.loadFlowProfile,
		SendVerification:  e.queueVerificationEmail,
		SendPasswordReset: e.queuePasswordReset,
		RevokeRefreshTokens: func(ctx context.Context, uid string) error {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			return e.gateway.RevokeRefreshTokens(gctx, uid)
		},
	}
}
