package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/claims"
	"google.golang.org/api/option"
)

// adminClient is the part of *auth.Client the gateway uses.
type adminClient interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
	CustomToken(ctx context.Context, uid string) (string, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	EmailVerificationLink(ctx context.Context, email string) (string, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

// errorKinds classifies Admin SDK errors.
type errorKinds struct {
	userNotFound  func(error) bool
	emailExists   func(error) bool
	tokenRejected func(error) bool
}

var sdkErrorKinds = errorKinds{
	userNotFound: auth.IsUserNotFound,
	emailExists:  auth.IsEmailAlreadyExists,
	tokenRejected: func(err error) bool {
		return auth.IsIDTokenInvalid(err) ||
			auth.IsIDTokenExpired(err) ||
			auth.IsIDTokenRevoked(err) ||
			auth.IsUserDisabled(err) ||
			auth.IsUserNotFound(err)
	},
}

// Gateway is a Firebase [goIdentity.CredentialGateway].
type Gateway struct {
	admin  adminClient
	rest   *restClient
	errors errorKinds
}

var _ goIdentity.CredentialGateway = (*Gateway)(nil)

// New initializes a Firebase app for cfg and returns a Gateway.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var appConfig *firebase.Config
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: init auth client: %w", err)
	}
	return newGateway(ctx, client, cfg)
}

func newGateway(ctx context.Context, admin adminClient, cfg Config) (*Gateway, error) {
	rest, err := newRESTClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		admin:  admin,
		rest:   rest,
		errors: sdkErrorKinds,
	}, nil
}

// CreateIdentity implements goIdentity.CredentialGateway.
func (g *Gateway) CreateIdentity(ctx context.Context, in goIdentity.NewIdentity) (goIdentity.ExternalIdentity, error) {
	params := (&auth.UserToCreate{}).
		Email(in.Email).
		Password(in.Password).
		EmailVerified(in.EmailVerified)
	if in.DisplayName != "" {
		params = params.DisplayName(in.DisplayName)
	}

	rec, err := g.admin.CreateUser(ctx, params)
	if err != nil {
		if g.errors.emailExists(err) {
			return goIdentity.ExternalIdentity{}, fmt.Errorf("%w: %w", goIdentity.ErrIdentityEmailExists, err)
		}
		return goIdentity.ExternalIdentity{}, fmt.Errorf("firebase: create user: %w", err)
	}
	return toIdentity(rec), nil
}

// GetIdentity implements goIdentity.CredentialGateway.
func (g *Gateway) GetIdentity(ctx context.Context, uid string) (goIdentity.ExternalIdentity, error) {
	rec, err := g.admin.GetUser(ctx, uid)
	if err != nil {
		return goIdentity.ExternalIdentity{}, g.lookupError("get user", err)
	}
	return toIdentity(rec), nil
}

// GetIdentityByEmail implements goIdentity.CredentialGateway.
func (g *Gateway) GetIdentityByEmail(ctx context.Context, email string) (goIdentity.ExternalIdentity, error) {
	rec, err := g.admin.GetUserByEmail(ctx, email)
	if err != nil {
		return goIdentity.ExternalIdentity{}, g.lookupError("get user by email", err)
	}
	return toIdentity(rec), nil
}

// UpdateIdentity implements goIdentity.CredentialGateway.
func (g *Gateway) UpdateIdentity(ctx context.Context, uid string, update goIdentity.IdentityUpdate) (goIdentity.ExternalIdentity, error) {
	params := &auth.UserToUpdate{}
	if update.Email != nil {
		params = params.Email(*update.Email)
	}
	if update.EmailVerified != nil {
		params = params.EmailVerified(*update.EmailVerified)
	}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}

	rec, err := g.admin.UpdateUser(ctx, uid, params)
	if err != nil {
		if g.errors.emailExists(err) {
			return goIdentity.ExternalIdentity{}, fmt.Errorf("%w: %w", goIdentity.ErrIdentityEmailExists, err)
		}
		return goIdentity.ExternalIdentity{}, g.lookupError("update user", err)
	}
	return toIdentity(rec), nil
}

// DeleteIdentity implements goIdentity.CredentialGateway.
func (g *Gateway) DeleteIdentity(ctx context.Context, uid string) error {
	if err := g.admin.DeleteUser(ctx, uid); err != nil {
		return g.lookupError("delete user", err)
	}
	return nil
}

// VerifyPassword signs in through Identity Toolkit. The session it creates
// is discarded.
func (g *Gateway) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	return g.rest.signInWithPassword(ctx, email, password)
}

// MintCustomToken implements goIdentity.CredentialGateway.
func (g *Gateway) MintCustomToken(ctx context.Context, uid string) (string, error) {
	token, err := g.admin.CustomToken(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("firebase: custom token: %w", err)
	}
	return token, nil
}

// ExchangeCustomToken implements goIdentity.CredentialGateway. The uid is
// read from the verified ID token of the new session.
func (g *Gateway) ExchangeCustomToken(ctx context.Context, customToken string) (goIdentity.SessionTokens, error) {
	idToken, refreshToken, expiresIn, err := g.rest.signInWithCustomToken(ctx, customToken)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}

	raw, err := g.VerifyIDToken(ctx, idToken)
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	id, err := claims.Normalize(raw)
	if err != nil {
		return goIdentity.SessionTokens{}, fmt.Errorf("firebase: session claims: %w", err)
	}
	return goIdentity.SessionTokens{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		UID:          id.UID,
		ExpiresIn:    expiresIn,
	}, nil
}

// ExchangeRefreshToken implements goIdentity.CredentialGateway.
func (g *Gateway) ExchangeRefreshToken(ctx context.Context, refreshToken string) (goIdentity.SessionTokens, error) {
	return g.rest.refresh(ctx, refreshToken)
}

// VerifyIDToken verifies the token including the revocation check and
// returns its claims with the uid set.
func (g *Gateway) VerifyIDToken(ctx context.Context, idToken string) (map[string]any, error) {
	tok, err := g.admin.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		if g.errors.tokenRejected(err) {
			return nil, fmt.Errorf("%w: %w", goIdentity.ErrTokenRejected, err)
		}
		return nil, fmt.Errorf("firebase: verify id token: %w", err)
	}

	out := make(map[string]any, len(tok.Claims)+2)
	for k, v := range tok.Claims {
		out[k] = v
	}
	out["uid"] = tok.UID
	if tok.Subject != "" {
		out["sub"] = tok.Subject
	}
	return out, nil
}

// RevokeRefreshTokens implements goIdentity.CredentialGateway.
func (g *Gateway) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := g.admin.RevokeRefreshTokens(ctx, uid); err != nil {
		return g.lookupError("revoke refresh tokens", err)
	}
	return nil
}

// EmailVerificationLink implements goIdentity.CredentialGateway.
func (g *Gateway) EmailVerificationLink(ctx context.Context, email string) (string, error) {
	link, err := g.admin.EmailVerificationLink(ctx, email)
	if err != nil {
		return "", g.lookupError("email verification link", err)
	}
	return link, nil
}

// PasswordResetLink implements goIdentity.CredentialGateway.
func (g *Gateway) PasswordResetLink(ctx context.Context, email string) (string, error) {
	link, err := g.admin.PasswordResetLink(ctx, email)
	if err != nil {
		return "", g.lookupError("password reset link", err)
	}
	return link, nil
}

func (g *Gateway) lookupError(op string, err error) error {
	if g.errors.userNotFound(err) {
		return fmt.Errorf("%w: %w", goIdentity.ErrIdentityNotFound, err)
	}
	return fmt.Errorf("firebase: %s: %w", op, err)
}

func toIdentity(rec *auth.UserRecord) goIdentity.ExternalIdentity {
	if rec == nil || rec.UserInfo == nil {
		return goIdentity.ExternalIdentity{}
	}
	return goIdentity.ExternalIdentity{
		UID:           rec.UID,
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		DisplayName:   rec.DisplayName,
		Disabled:      rec.Disabled,
		CustomClaims:  rec.CustomClaims,
	}
}
