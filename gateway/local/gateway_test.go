package local

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/claims"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*Gateway, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig([]byte(strings.Repeat("k", 32)))
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.ActionURL = "https://app.example.com/auth/action"

	gw, err := New(client, cfg)
	require.NoError(t, err)
	return gw, mr
}

func createUser(t *testing.T, gw *Gateway, email string) goIdentity.ExternalIdentity {
	t.Helper()
	id, err := gw.CreateIdentity(context.Background(), goIdentity.NewIdentity{
		Email:       email,
		Password:    "secret123",
		DisplayName: "Test",
	})
	require.NoError(t, err)
	return id
}

func TestCreateIdentityClaimsEmail(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	id := createUser(t, gw, "Ada@Example.com")
	assert.Equal(t, "ada@example.com", id.Email)
	assert.NotEmpty(t, id.UID)

	_, err := gw.CreateIdentity(ctx, goIdentity.NewIdentity{Email: "ada@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, goIdentity.ErrIdentityEmailExists)

	byEmail, err := gw.GetIdentityByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, id.UID, byEmail.UID)
}

func TestVerifyPassword(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "bob@example.com")

	uid, err := gw.VerifyPassword(ctx, "bob@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id.UID, uid)

	_, err = gw.VerifyPassword(ctx, "bob@example.com", "wrong-pass")
	assert.ErrorIs(t, err, goIdentity.ErrCredentialRejected)

	_, err = gw.VerifyPassword(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, goIdentity.ErrCredentialRejected)

	require.NoError(t, gw.SetDisabled(ctx, id.UID, true))
	_, err = gw.VerifyPassword(ctx, "bob@example.com", "secret123")
	assert.ErrorIs(t, err, goIdentity.ErrCredentialRejected)
}

func TestCustomTokenIsSingleUse(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "cat@example.com")

	custom, err := gw.MintCustomToken(ctx, id.UID)
	require.NoError(t, err)

	tokens, err := gw.ExchangeCustomToken(ctx, custom)
	require.NoError(t, err)
	assert.Equal(t, id.UID, tokens.UID)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, time.Hour, tokens.ExpiresIn)

	_, err = gw.ExchangeCustomToken(ctx, custom)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)

	_, err = gw.ExchangeCustomToken(ctx, tokens.IDToken)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected, "an ID token is not a custom token")
}

func TestVerifyIDTokenNormalizes(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "dan@example.com")

	custom, err := gw.MintCustomToken(ctx, id.UID)
	require.NoError(t, err)
	tokens, err := gw.ExchangeCustomToken(ctx, custom)
	require.NoError(t, err)

	raw, err := gw.VerifyIDToken(ctx, tokens.IDToken)
	require.NoError(t, err)
	norm, err := claims.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, id.UID, norm.UID)
	assert.Equal(t, "dan@example.com", norm.Email)

	_, err = gw.VerifyIDToken(ctx, custom)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)
	_, err = gw.VerifyIDToken(ctx, "garbage")
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)
}

func TestRefreshRotationRejectsReuse(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "eve@example.com")

	custom, err := gw.MintCustomToken(ctx, id.UID)
	require.NoError(t, err)
	first, err := gw.ExchangeCustomToken(ctx, custom)
	require.NoError(t, err)

	second, err := gw.ExchangeRefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, id.UID, second.UID)

	_, err = gw.ExchangeRefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)

	// Replay ends the whole session, including the rotated token.
	_, err = gw.ExchangeRefreshToken(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)

	_, err = gw.ExchangeRefreshToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)
}

func TestRefreshSessionExpires(t *testing.T) {
	gw, mr := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "fay@example.com")

	custom, _ := gw.MintCustomToken(ctx, id.UID)
	tokens, err := gw.ExchangeCustomToken(ctx, custom)
	require.NoError(t, err)

	mr.FastForward(31 * 24 * time.Hour)
	_, err = gw.ExchangeRefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)
}

func TestRevokeRefreshTokens(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "gus@example.com")

	var refresh []string
	for i := 0; i < 2; i++ {
		custom, _ := gw.MintCustomToken(ctx, id.UID)
		tokens, err := gw.ExchangeCustomToken(ctx, custom)
		require.NoError(t, err)
		refresh = append(refresh, tokens.RefreshToken)
	}

	require.NoError(t, gw.RevokeRefreshTokens(ctx, id.UID))
	for _, rt := range refresh {
		_, err := gw.ExchangeRefreshToken(ctx, rt)
		assert.ErrorIs(t, err, goIdentity.ErrTokenRejected)
	}
}

func TestUpdateIdentityMovesEmailIndex(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "hal@example.com")
	other := createUser(t, gw, "ivy@example.com")

	next := "hal2@example.com"
	verified := true
	updated, err := gw.UpdateIdentity(ctx, id.UID, goIdentity.IdentityUpdate{Email: &next, EmailVerified: &verified})
	require.NoError(t, err)
	assert.Equal(t, next, updated.Email)
	assert.True(t, updated.EmailVerified)

	_, err = gw.GetIdentityByEmail(ctx, "hal@example.com")
	assert.ErrorIs(t, err, goIdentity.ErrIdentityNotFound)

	taken := other.Email
	_, err = gw.UpdateIdentity(ctx, id.UID, goIdentity.IdentityUpdate{Email: &taken})
	assert.ErrorIs(t, err, goIdentity.ErrIdentityEmailExists)

	_, err = gw.VerifyPassword(ctx, next, "secret123")
	assert.NoError(t, err)
}

func TestDeleteIdentity(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "jay@example.com")

	require.NoError(t, gw.DeleteIdentity(ctx, id.UID))

	_, err := gw.GetIdentity(ctx, id.UID)
	assert.ErrorIs(t, err, goIdentity.ErrIdentityNotFound)

	// The email is free again.
	createUser(t, gw, "jay@example.com")

	assert.ErrorIs(t, gw.DeleteIdentity(ctx, id.UID), goIdentity.ErrIdentityNotFound)
}

func TestActionLinks(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()
	id := createUser(t, gw, "kim@example.com")

	link, err := gw.EmailVerificationLink(ctx, "kim@example.com")
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, string(ModeVerifyEmail), u.Query().Get("mode"))
	code := u.Query().Get("oobCode")

	err = gw.ConfirmPasswordReset(ctx, code, "new-secret")
	assert.ErrorIs(t, err, goIdentity.ErrTokenRejected, "a verify code cannot reset a password")

	_, err = gw.PasswordResetLink(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, goIdentity.ErrIdentityNotFound)

	link, err = gw.EmailVerificationLink(ctx, "kim@example.com")
	require.NoError(t, err)
	u, _ = url.Parse(link)
	verified, err := gw.ApplyEmailVerification(ctx, u.Query().Get("oobCode"))
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)

	link, err = gw.PasswordResetLink(ctx, "kim@example.com")
	require.NoError(t, err)
	u, _ = url.Parse(link)
	require.NoError(t, gw.ConfirmPasswordReset(ctx, u.Query().Get("oobCode"), "new-secret"))

	uid, err := gw.VerifyPassword(ctx, "kim@example.com", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, id.UID, uid)
}
