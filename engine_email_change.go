package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
)

// InitiateEmailChange describes the initiateemailchange operation and its observable behavior.
//
// InitiateEmailChange sends a numeric code to newEmail and records the
// pending request. It fails with [ErrEmailInUse] when newEmail already
// belongs to an identity, and with [ErrDownstream] when the code cannot be
// delivered, in which case nothing is recorded. A new request replaces any
// earlier one.
func (e *Engine) InitiateEmailChange(ctx context.Context, uid, newEmail, password string) (*EmailChangeTicket, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.InitiateEmailChange(ctx, uid, newEmail, password)
	if err != nil {
		return nil, err
	}
	return &EmailChangeTicket{
		PendingEmail: res.PendingEmail,
		ExpiresAt:    res.ExpiresAt,
	}, nil
}

// VerifyEmailChange completes the pending change when code matches. It
// returns [ErrNoPendingChange], [ErrInvalidToken] or [ErrTokenExpired], in
// that order of precedence.
func (e *Engine) VerifyEmailChange(ctx context.Context, uid, code string) (*Profile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.VerifyEmailChange(ctx, uid, code)
	if err != nil {
		return nil, err
	}
	p := fromFlowProfile(*res)
	return &p, nil
}

// CancelEmailChange clears any pending request for uid.
func (e *Engine) CancelEmailChange(ctx context.Context, uid string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.flow.CancelEmailChange(ctx, uid)
}

func (e *Engine) emailChangeFlowDeps() internalflows.EmailChangeDeps {
	key := e.config.EmailChange.CodeHashKey
	codeLength := e.config.EmailChange.CodeLength

	return internalflows.EmailChangeDeps{
		Observer:        e.flowObserver(),
		Now:             e.clock,
		TokenTTL:        e.config.EmailChange.TokenTTL,
		RequirePassword: e.config.EmailChange.RequirePassword,

		CheckInitiate: func(ctx context.Context, uid string) error {
			return mapEmailChangeLimiterError(e.emailChangeLimiter.CheckInitiate(ctx, uid))
		},
		CheckVerify: func(ctx context.Context, uid string) error {
			return mapEmailChangeLimiterError(e.emailChangeLimiter.CheckVerify(ctx, uid))
		},
		ResetVerify: func(ctx context.Context, uid string) error {
			return mapEmailChangeLimiterError(e.emailChangeLimiter.ResetVerify(ctx, uid))
		},

		NewCode: func() (string, error) {
			return internal.NewOTP(codeLength)
		},
		HashCode: func(uid, code string) string {
			return internal.HashCode(key, uid, code)
		},
		EqualHash: internal.EqualCodeHash,

		LoadProfile: e.loadFlowProfile,
		SavePending: func(ctx context.Context, uid string, pending internalflows.PendingChangeRecord) error {
			return e.profiles.SetPendingEmailChange(ctx, uid, PendingEmailChange{
				Email:       pending.Email,
				TokenHash:   pending.TokenHash,
				RequestedAt: pending.RequestedAt,
			})
		},
		ClearPending: e.profiles.ClearPendingEmailChange,
		CommitEmail: func(ctx context.Context, uid, email string) (internalflows.ProfileRecord, error) {
			p, err := e.profiles.CommitEmailChange(ctx, uid, email)
			if err != nil {
				return internalflows.ProfileRecord{}, err
			}
			return toFlowProfile(p), nil
		},
		VerifyPassword: e.verifyPassword,

		LookupIdentityByEmail: func(ctx context.Context, email string) (internalflows.IdentityRecord, error) {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			id, err := e.gateway.GetIdentityByEmail(gctx, email)
			if err != nil {
				return internalflows.IdentityRecord{}, err
			}
			return toFlowIdentity(id), nil
		},
		GetIdentity: func(ctx context.Context, uid string) (internalflows.IdentityRecord, error) {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			id, err := e.gateway.GetIdentity(gctx, uid)
			if err != nil {
				return internalflows.IdentityRecord{}, err
			}
			return toFlowIdentity(id), nil
		},
		SetIdentityEmail: func(ctx context.Context, uid, email string, verified bool) error {
			gctx, cancel := e.gatewayContext(ctx)
			defer cancel()
			_, err := e.gateway.UpdateIdentity(gctx, uid, IdentityUpdate{
				Email:         &email,
				EmailVerified: &verified,
			})
			return err
		},

		SendCode: func(ctx context.Context, uid, email, code string) error {
			return e.sendNow(ctx, Message{
				Kind:   MessageEmailChangeCode,
				To:     email,
				UserID: uid,
				Code:   code,
			})
		},
		NotifyChanged: func(ctx context.Context, uid, oldEmail, newEmail string) {
			e.queueEmailChangedNotices(ctx, uid, oldEmail, newEmail)
		},
	}
}

func toFlowIdentity(id ExternalIdentity) internalflows.IdentityRecord {
	return internalflows.IdentityRecord{
		UID:           id.UID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
	}
}

func mapEmailChangeLimiterError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrEmailChangeRateLimited) {
		return ErrEmailChangeRateLimited
	}
	return err
}
