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
	registerStepIdentity = "create_identity"
	registerStepProfile  = "create_profile"
)

// RegisterRequest is the flow-local registration input.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	FirstName   string
	LastName    string
}

// RegisterResult carries the created profile and, when auto-login worked,
// the session tokens.
type RegisterResult struct {
	Profile ProfileRecord
	Tokens  *TokenRecord
	// AutoLoginErr is set when the account exists but no session was issued.
	AutoLoginErr error
}

// RegisterDeps captures registration flow dependencies.
type RegisterDeps struct {
	Observer

	Now               func() time.Time
	MinPasswordLength int
	MaxPasswordLength int

	CreateIdentity      func(ctx context.Context, email, password, displayName string) (string, error)
	DeleteIdentity      func(ctx context.Context, uid string) error
	CreateProfile       func(ctx context.Context, p ProfileRecord) error
	MintCustomToken     func(ctx context.Context, uid string) (string, error)
	ExchangeCustomToken func(ctx context.Context, customToken string) (TokenRecord, error)
	// SendVerification queues the verification link; it must not block.
	SendVerification func(ctx context.Context, uid, email string)
}

// RunRegister creates the external identity and the local profile as one
// logical unit. A uniqueness conflict on the profile deletes the identity
// again; other profile failures are returned as-is.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) (*RegisterResult, error) {
	obs := deps.Observer.normalize()
	if deps.CreateIdentity == nil || deps.CreateProfile == nil || deps.DeleteIdentity == nil {
		return nil, obs.Errors.EngineNotReady
	}
	now := nowOrDefault(deps.Now)

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return nil, fmt.Errorf("%w: email is invalid", obs.Errors.Validation)
	}
	if err := checkPassword(req.Password, deps.MinPasswordLength, deps.MaxPasswordLength, obs.Errors.Validation); err != nil {
		return nil, err
	}

	ts := now().UTC()
	profile := ProfileRecord{
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	var uid string
	err := saga.Run(ctx, saga.Options{
		ShouldCompensate: func(step string, err error) bool {
			return step == registerStepProfile && errors.Is(err, obs.Errors.DuplicateAccount)
		},
		OnCompensationFailure: func(ctx context.Context, failure *saga.CompensationError) {
			obs.MetricInc(obs.Metrics.RegisterCompensationFailed)
			obs.Error("goIdentity: registration compensation failed, identity orphaned",
				"uid", uid,
				"step", failure.Step,
				"error", failure.Err,
			)
			obs.Report(ctx, "register.compensate", uid, failure, map[string]string{
				"orphan_uid": uid,
			})
			obs.EmitAudit(ctx, obs.Events.RegisterCompensationFailed, false, uid, failure.Err, nil)
		},
	},
		saga.Step{
			Name: registerStepIdentity,
			Action: func(ctx context.Context) error {
				id, err := deps.CreateIdentity(ctx, email, req.Password, profile.DisplayName)
				if err != nil {
					return err
				}
				uid = id
				profile.UID = id
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return deps.DeleteIdentity(ctx, uid)
			},
		},
		saga.Step{
			Name: registerStepProfile,
			Action: func(ctx context.Context) error {
				return deps.CreateProfile(ctx, profile)
			},
		},
	)
	req.Password = ""

	if err != nil {
		var stepErr *saga.StepError
		if !errors.As(err, &stepErr) {
			stepErr = &saga.StepError{Step: registerStepIdentity, Err: err}
		}
		return nil, registerFailure(ctx, obs, uid, stepErr)
	}

	result := &RegisterResult{Profile: profile}

	tokens, err := autoLogin(ctx, uid, deps)
	if err != nil {
		obs.MetricInc(obs.Metrics.RegisterAutoLoginFailed)
		obs.Warn("goIdentity: registration auto-login failed", "uid", uid, "error", err)
		obs.Report(ctx, "register.auto_login", uid, err, nil)
		result.AutoLoginErr = err
	} else {
		result.Tokens = &tokens
	}

	if deps.SendVerification != nil {
		deps.SendVerification(ctx, uid, email)
	}

	obs.MetricInc(obs.Metrics.RegisterSuccess)
	obs.EmitAudit(ctx, obs.Events.RegisterSuccess, true, uid, nil, func() map[string]string {
		return map[string]string{
			"session": fmt.Sprintf("%t", result.Tokens != nil),
		}
	})

	return result, nil
}

func registerFailure(ctx context.Context, obs Observer, uid string, stepErr *saga.StepError) error {
	cause := stepErr.Err

	switch {
	case stepErr.Step == registerStepIdentity && errors.Is(cause, obs.Errors.IdentityEmailExists),
		stepErr.Step == registerStepProfile && errors.Is(cause, obs.Errors.DuplicateAccount):
		obs.MetricInc(obs.Metrics.RegisterDuplicate)
		obs.EmitAudit(ctx, obs.Events.RegisterDuplicate, false, uid, obs.Errors.DuplicateAccount, func() map[string]string {
			return map[string]string{"step": stepErr.Step}
		})
		return obs.Errors.DuplicateAccount

	case errors.Is(cause, obs.Errors.Validation):
		obs.EmitAudit(ctx, obs.Events.RegisterFailure, false, uid, cause, nil)
		return cause
	}

	obs.Error("goIdentity: registration failed", "uid", uid, "step", stepErr.Step, "error", cause)
	obs.Report(ctx, "register."+stepErr.Step, uid, cause, nil)
	obs.EmitAudit(ctx, obs.Events.RegisterFailure, false, uid, obs.Errors.Downstream, func() map[string]string {
		return map[string]string{"step": stepErr.Step}
	})
	return fmt.Errorf("%w: %s: %w", obs.Errors.Downstream, stepErr.Step, cause)
}

func autoLogin(ctx context.Context, uid string, deps RegisterDeps) (TokenRecord, error) {
	if deps.MintCustomToken == nil || deps.ExchangeCustomToken == nil {
		return TokenRecord{}, deps.Observer.Errors.EngineNotReady
	}
	custom, err := deps.MintCustomToken(ctx, uid)
	if err != nil {
		return TokenRecord{}, err
	}
	tokens, err := deps.ExchangeCustomToken(ctx, custom)
	if err != nil {
		return TokenRecord{}, err
	}
	if tokens.UID == "" {
		tokens.UID = uid
	}
	return tokens, nil
}
