package local

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every storage failure.
var ErrRedisUnavailable = errors.New("local gateway: redis unavailable")

const (
	fieldEmail    = "email"
	fieldVerified = "ev"
	fieldName     = "name"
	fieldDisabled = "disabled"
	fieldPassword = "pw"
	fieldCreated  = "created"
)

const (
	createStatusTaken   int64 = 0
	createStatusCreated int64 = 1
)

// KEYS: email index, identity. ARGV: uid, email, verified, name, pw hash, created.
var createIdentityLua = redis.NewScript(`
if not redis.call("SET", KEYS[1], ARGV[1], "NX") then
  return 0
end
redis.call("HSET", KEYS[2], "email", ARGV[2], "ev", ARGV[3], "name", ARGV[4], "pw", ARGV[5], "created", ARGV[6], "disabled", "0")
return 1
`)

const (
	changeStatusMissing  int64 = 0
	changeStatusChanged  int64 = 1
	changeStatusTaken    int64 = 2
	changeStatusConflict int64 = 3
)

// KEYS: identity, old email index, new email index. ARGV: uid, new email, old email.
var changeEmailLua = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "email")
if not current then
  return 0
end
if current ~= ARGV[3] then
  return 3
end
local owner = redis.call("GET", KEYS[3])
if owner and owner ~= ARGV[1] then
  return 2
end
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
end
redis.call("SET", KEYS[3], ARGV[1])
redis.call("HSET", KEYS[1], "email", ARGV[2])
return 1
`)

// Gateway is a Redis-backed [goIdentity.CredentialGateway].
type Gateway struct {
	redis  redis.UniversalClient
	config Config
	tokens *jwt.Manager
	hasher *password.Hasher
}

var _ goIdentity.CredentialGateway = (*Gateway)(nil)

// New validates cfg and returns a Gateway using client for storage.
func New(client redis.UniversalClient, cfg Config) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("local gateway: redis client required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(cfg.Tokens)
	if err != nil {
		return nil, fmt.Errorf("local gateway tokens: %w", err)
	}
	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("local gateway password: %w", err)
	}

	return &Gateway{
		redis:  client,
		config: cfg,
		tokens: tokens,
		hasher: hasher,
	}, nil
}

func (g *Gateway) identityKey(uid string) string {
	return g.config.Prefix + "u:" + uid
}

func (g *Gateway) emailKey(email string) string {
	return g.config.Prefix + "e:" + normalizeEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// CreateIdentity stores a new identity. The email is claimed atomically; a
// taken email returns [goIdentity.ErrIdentityEmailExists].
func (g *Gateway) CreateIdentity(ctx context.Context, in goIdentity.NewIdentity) (goIdentity.ExternalIdentity, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return goIdentity.ExternalIdentity{}, errors.New("local gateway: email required")
	}
	hash, err := g.hasher.Hash(in.Password)
	if err != nil {
		return goIdentity.ExternalIdentity{}, fmt.Errorf("local gateway: hash password: %w", err)
	}

	uid := uuid.NewString()
	status, err := createIdentityLua.Run(ctx, g.redis,
		[]string{g.emailKey(email), g.identityKey(uid)},
		uid, email, formatBool(in.EmailVerified), in.DisplayName, hash, strconv.FormatInt(time.Now().Unix(), 10),
	).Int64()
	if err != nil {
		return goIdentity.ExternalIdentity{}, unavailable(err)
	}
	if status == createStatusTaken {
		return goIdentity.ExternalIdentity{}, goIdentity.ErrIdentityEmailExists
	}

	return goIdentity.ExternalIdentity{
		UID:           uid,
		Email:         email,
		EmailVerified: in.EmailVerified,
		DisplayName:   in.DisplayName,
	}, nil
}

// GetIdentity returns the identity for uid.
func (g *Gateway) GetIdentity(ctx context.Context, uid string) (goIdentity.ExternalIdentity, error) {
	rec, err := g.load(ctx, uid)
	if err != nil {
		return goIdentity.ExternalIdentity{}, err
	}
	return rec.identity, nil
}

// GetIdentityByEmail resolves email through the unique index.
func (g *Gateway) GetIdentityByEmail(ctx context.Context, email string) (goIdentity.ExternalIdentity, error) {
	uid, err := g.uidByEmail(ctx, email)
	if err != nil {
		return goIdentity.ExternalIdentity{}, err
	}
	return g.GetIdentity(ctx, uid)
}

// UpdateIdentity applies the non-nil fields of update. An email change moves
// the unique index entry in the same script that rewrites the record.
func (g *Gateway) UpdateIdentity(ctx context.Context, uid string, update goIdentity.IdentityUpdate) (goIdentity.ExternalIdentity, error) {
	rec, err := g.load(ctx, uid)
	if err != nil {
		return goIdentity.ExternalIdentity{}, err
	}

	if update.Email != nil {
		next := normalizeEmail(*update.Email)
		if next != rec.identity.Email {
			status, err := changeEmailLua.Run(ctx, g.redis,
				[]string{g.identityKey(uid), g.emailKey(rec.identity.Email), g.emailKey(next)},
				uid, next, rec.identity.Email,
			).Int64()
			if err != nil {
				return goIdentity.ExternalIdentity{}, unavailable(err)
			}
			switch status {
			case changeStatusMissing:
				return goIdentity.ExternalIdentity{}, goIdentity.ErrIdentityNotFound
			case changeStatusTaken:
				return goIdentity.ExternalIdentity{}, goIdentity.ErrIdentityEmailExists
			case changeStatusConflict:
				return goIdentity.ExternalIdentity{}, errors.New("local gateway: concurrent email update")
			}
		}
	}

	fields := make([]any, 0, 4)
	if update.EmailVerified != nil {
		fields = append(fields, fieldVerified, formatBool(*update.EmailVerified))
	}
	if update.DisplayName != nil {
		fields = append(fields, fieldName, *update.DisplayName)
	}
	if len(fields) > 0 {
		if err := g.redis.HSet(ctx, g.identityKey(uid), fields...).Err(); err != nil {
			return goIdentity.ExternalIdentity{}, unavailable(err)
		}
	}

	return g.GetIdentity(ctx, uid)
}

// DeleteIdentity removes the identity, its email index entry and every
// refresh session.
func (g *Gateway) DeleteIdentity(ctx context.Context, uid string) error {
	rec, err := g.load(ctx, uid)
	if err != nil {
		return err
	}
	if err := g.RevokeRefreshTokens(ctx, uid); err != nil {
		return err
	}

	emailKey := g.emailKey(rec.identity.Email)
	owner, err := g.redis.Get(ctx, emailKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}

	_, err = g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, g.identityKey(uid))
		if owner == uid {
			pipe.Del(ctx, emailKey)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// SetDisabled blocks or unblocks sign-in for uid. Disabling revokes refresh
// sessions.
func (g *Gateway) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	if _, err := g.load(ctx, uid); err != nil {
		return err
	}
	if err := g.redis.HSet(ctx, g.identityKey(uid), fieldDisabled, formatBool(disabled)).Err(); err != nil {
		return unavailable(err)
	}
	if disabled {
		return g.RevokeRefreshTokens(ctx, uid)
	}
	return nil
}

// VerifyPassword checks password for email. Unknown emails spend the same
// hashing work as known ones and return the same error.
func (g *Gateway) VerifyPassword(ctx context.Context, email, pw string) (string, error) {
	uid, err := g.uidByEmail(ctx, email)
	if errors.Is(err, goIdentity.ErrIdentityNotFound) {
		g.hasher.VerifyDummy(pw)
		return "", goIdentity.ErrCredentialRejected
	}
	if err != nil {
		return "", err
	}

	rec, err := g.load(ctx, uid)
	if errors.Is(err, goIdentity.ErrIdentityNotFound) {
		g.hasher.VerifyDummy(pw)
		return "", goIdentity.ErrCredentialRejected
	}
	if err != nil {
		return "", err
	}

	ok, err := g.hasher.Verify(pw, rec.passwordHash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return "", goIdentity.ErrCredentialRejected
	}
	if err != nil {
		return "", fmt.Errorf("local gateway: verify password: %w", err)
	}
	if !ok || rec.identity.Disabled {
		return "", goIdentity.ErrCredentialRejected
	}

	if stale, _ := g.hasher.NeedsRehash(rec.passwordHash); stale {
		g.rehash(ctx, uid, pw)
	}
	return uid, nil
}

func (g *Gateway) rehash(ctx context.Context, uid, pw string) {
	hash, err := g.hasher.Hash(pw)
	if err != nil {
		return
	}
	_ = g.redis.HSet(ctx, g.identityKey(uid), fieldPassword, hash).Err()
}

type identityRecord struct {
	identity     goIdentity.ExternalIdentity
	passwordHash string
}

func (g *Gateway) load(ctx context.Context, uid string) (identityRecord, error) {
	if uid == "" {
		return identityRecord{}, goIdentity.ErrIdentityNotFound
	}
	fields, err := g.redis.HGetAll(ctx, g.identityKey(uid)).Result()
	if err != nil {
		return identityRecord{}, unavailable(err)
	}
	if len(fields) == 0 {
		return identityRecord{}, goIdentity.ErrIdentityNotFound
	}

	return identityRecord{
		identity: goIdentity.ExternalIdentity{
			UID:           uid,
			Email:         fields[fieldEmail],
			EmailVerified: fields[fieldVerified] == "1",
			DisplayName:   fields[fieldName],
			Disabled:      fields[fieldDisabled] == "1",
		},
		passwordHash: fields[fieldPassword],
	}, nil
}

func (g *Gateway) uidByEmail(ctx context.Context, email string) (string, error) {
	uid, err := g.redis.Get(ctx, g.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", goIdentity.ErrIdentityNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return uid, nil
}

func formatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
