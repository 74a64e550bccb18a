package local

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActionMode names the out-of-band action a link performs. The values match
// the mode parameter hosted providers use.
type ActionMode string

const (
	ModeVerifyEmail   ActionMode = "verifyEmail"
	ModeResetPassword ActionMode = "resetPassword"
)

type actionCode struct {
	Mode  ActionMode `json:"mode"`
	UID   string     `json:"uid"`
	Email string     `json:"email"`
}

func (g *Gateway) actionKey(code string) string {
	return g.config.Prefix + "oob:" + code
}

// EmailVerificationLink returns a link that marks email verified.
func (g *Gateway) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	return g.actionLink(ctx, ModeVerifyEmail, email)
}

// PasswordResetLink returns a link that lets the owner of email set a new
// password.
func (g *Gateway) PasswordResetLink(ctx context.Context, email string) (string, error) {
	return g.actionLink(ctx, ModeResetPassword, email)
}

func (g *Gateway) actionLink(ctx context.Context, mode ActionMode, email string) (string, error) {
	id, err := g.GetIdentityByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	code := uuid.NewString()
	payload, err := json.Marshal(actionCode{Mode: mode, UID: id.UID, Email: id.Email})
	if err != nil {
		return "", err
	}
	if err := g.redis.Set(ctx, g.actionKey(code), payload, g.config.ActionCodeTTL).Err(); err != nil {
		return "", unavailable(err)
	}

	u, err := url.Parse(g.config.ActionURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mode", string(mode))
	q.Set("oobCode", code)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ApplyEmailVerification consumes a verification code. The identity is only
// marked verified if it still has the email the link was issued for.
func (g *Gateway) ApplyEmailVerification(ctx context.Context, code string) (goIdentity.ExternalIdentity, error) {
	action, err := g.consumeAction(ctx, code, ModeVerifyEmail)
	if err != nil {
		return goIdentity.ExternalIdentity{}, err
	}
	id, err := g.GetIdentity(ctx, action.UID)
	if err != nil {
		return goIdentity.ExternalIdentity{}, err
	}
	if id.Email != action.Email {
		return goIdentity.ExternalIdentity{}, goIdentity.ErrTokenRejected
	}

	verified := true
	return g.UpdateIdentity(ctx, action.UID, goIdentity.IdentityUpdate{EmailVerified: &verified})
}

// ConfirmPasswordReset consumes a reset code, stores newPassword and revokes
// every refresh session.
func (g *Gateway) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	action, err := g.consumeAction(ctx, code, ModeResetPassword)
	if err != nil {
		return err
	}
	if _, err := g.load(ctx, action.UID); err != nil {
		return err
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := g.redis.HSet(ctx, g.identityKey(action.UID), fieldPassword, hash).Err(); err != nil {
		return unavailable(err)
	}
	return g.RevokeRefreshTokens(ctx, action.UID)
}

func (g *Gateway) consumeAction(ctx context.Context, code string, mode ActionMode) (actionCode, error) {
	if code == "" {
		return actionCode{}, goIdentity.ErrTokenRejected
	}
	raw, err := g.redis.GetDel(ctx, g.actionKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return actionCode{}, goIdentity.ErrTokenRejected
	}
	if err != nil {
		return actionCode{}, unavailable(err)
	}

	var action actionCode
	if err := json.Unmarshal(raw, &action); err != nil || action.Mode != mode {
		return actionCode{}, goIdentity.ErrTokenRejected
	}
	return action, nil
}
