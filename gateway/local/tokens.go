package local

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/claims"
	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// KEYS: session, user session set. ARGV: session id, presented digest, next digest.
var rotateRefreshLua = redis.NewScript(`
local uid = redis.call("HGET", KEYS[1], "uid")
if not uid then
  redis.call("SREM", KEYS[2], ARGV[1])
  return {0}
end
if redis.call("HGET", KEYS[1], "h") ~= ARGV[2] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[1])
  return {2}
end
redis.call("HSET", KEYS[1], "h", ARGV[3])
return {3, uid}
`)

func (g *Gateway) customTokenKey(jti string) string {
	return g.config.Prefix + "ct:" + jti
}

func (g *Gateway) sessionKey(sid string) string {
	return g.config.Prefix + "rs:" + sid
}

func (g *Gateway) userSessionsKey(uid string) string {
	return g.config.Prefix + "us:" + uid
}

// MintCustomToken issues a single-use token for uid.
func (g *Gateway) MintCustomToken(ctx context.Context, uid string) (string, error) {
	if _, err := g.load(ctx, uid); err != nil {
		return "", err
	}

	jti := uuid.NewString()
	if err := g.redis.Set(ctx, g.customTokenKey(jti), uid, g.config.Tokens.CustomTokenTTL).Err(); err != nil {
		return "", unavailable(err)
	}
	return g.tokens.IssueCustomToken(uid, jti)
}

// ExchangeCustomToken redeems a custom token once for a session.
func (g *Gateway) ExchangeCustomToken(ctx context.Context, customToken string) (goIdentity.SessionTokens, error) {
	parsed, err := g.tokens.Parse(customToken, jwt.KindCustom)
	if err != nil || parsed.ID == "" {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}

	owner, err := g.redis.GetDel(ctx, g.customTokenKey(parsed.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}
	if err != nil {
		return goIdentity.SessionTokens{}, unavailable(err)
	}
	if owner != parsed.UID {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}

	return g.startSession(ctx, parsed.UID)
}

// ExchangeRefreshToken rotates a refresh token. The presented token stops
// working whether or not the rotation succeeds.
func (g *Gateway) ExchangeRefreshToken(ctx context.Context, refreshToken string) (goIdentity.SessionTokens, error) {
	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}
	presented := internal.HashRefreshSecret(secret)

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	nextDigest := internal.HashRefreshSecret(nextSecret)

	uid, err := g.rotate(ctx, sid, presented, nextDigest)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}

	rec, err := g.load(ctx, uid)
	if errors.Is(err, goIdentity.ErrIdentityNotFound) {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	if rec.identity.Disabled {
		_ = g.RevokeRefreshTokens(ctx, uid)
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}

	next, err := internal.EncodeRefreshToken(sid, nextSecret)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	return g.sessionTokens(rec.identity, next)
}

func (g *Gateway) rotate(ctx context.Context, sid string, presented, next [32]byte) (string, error) {
	// The user set key depends on the owner, so resolve it before the script.
	uid, err := g.redis.HGet(ctx, g.sessionKey(sid), "uid").Result()
	if errors.Is(err, redis.Nil) {
		return "", goIdentity.ErrTokenRejected
	}
	if err != nil {
		return "", unavailable(err)
	}

	result, err := rotateRefreshLua.Run(ctx, g.redis,
		[]string{g.sessionKey(sid), g.userSessionsKey(uid)},
		sid, hex.EncodeToString(presented[:]), hex.EncodeToString(next[:]),
	).Slice()
	if err != nil {
		return "", unavailable(err)
	}
	if len(result) == 0 {
		return "", fmt.Errorf("%w: invalid refresh script response", ErrRedisUnavailable)
	}

	code, ok := result[0].(int64)
	if !ok {
		return "", fmt.Errorf("%w: invalid refresh script status", ErrRedisUnavailable)
	}
	switch code {
	case rotateStatusRotated:
		if len(result) < 2 {
			return "", fmt.Errorf("%w: missing refresh session owner", ErrRedisUnavailable)
		}
		owner, _ := result[1].(string)
		if owner != uid {
			return "", goIdentity.ErrTokenRejected
		}
		return owner, nil
	case rotateStatusNotFound, rotateStatusMismatch:
		return "", goIdentity.ErrTokenRejected
	default:
		return "", fmt.Errorf("%w: unknown refresh script status", ErrRedisUnavailable)
	}
}

func (g *Gateway) startSession(ctx context.Context, uid string) (goIdentity.SessionTokens, error) {
	rec, err := g.load(ctx, uid)
	if errors.Is(err, goIdentity.ErrIdentityNotFound) {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	if rec.identity.Disabled {
		return goIdentity.SessionTokens{}, goIdentity.ErrTokenRejected
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	digest := internal.HashRefreshSecret(secret)

	sessionKey := g.sessionKey(sid.String())
	_, err = g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey, "uid", uid, "h", hex.EncodeToString(digest[:]))
		pipe.Expire(ctx, sessionKey, g.config.RefreshTTL)
		pipe.SAdd(ctx, g.userSessionsKey(uid), sid.String())
		pipe.Expire(ctx, g.userSessionsKey(uid), g.config.RefreshTTL)
		return nil
	})
	if err != nil {
		return goIdentity.SessionTokens{}, unavailable(err)
	}

	refresh, err := internal.EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	return g.sessionTokens(rec.identity, refresh)
}

func (g *Gateway) sessionTokens(id goIdentity.ExternalIdentity, refresh string) (goIdentity.SessionTokens, error) {
	idToken, err := g.tokens.IssueIDToken(id.UID, id.Email, id.EmailVerified)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	return goIdentity.SessionTokens{
		IDToken:      idToken,
		RefreshToken: refresh,
		UID:          id.UID,
		ExpiresIn:    g.tokens.IDTokenTTL(),
	}, nil
}

// VerifyIDToken checks signature, expiry and kind, and returns the claims.
func (g *Gateway) VerifyIDToken(_ context.Context, idToken string) (map[string]any, error) {
	parsed, err := g.tokens.Parse(idToken, jwt.KindID)
	if err != nil {
		return nil, goIdentity.ErrTokenRejected
	}
	raw := parsed.Map()
	if _, err := claims.Normalize(raw); err != nil {
		return nil, goIdentity.ErrTokenRejected
	}
	return raw, nil
}

// RevokeRefreshTokens deletes every refresh session of uid. Issued ID tokens
// stay valid until they expire.
func (g *Gateway) RevokeRefreshTokens(ctx context.Context, uid string) error {
	userKey := g.userSessionsKey(uid)
	sids, err := g.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}

	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, g.sessionKey(sid))
	}
	keys = append(keys, userKey)

	if err := g.redis.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
