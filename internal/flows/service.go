package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.VerifyPassword != nil && s.deps.Refresh.ExchangeRefreshToken != nil
}

func (s Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	return RunRegister(ctx, req, s.deps.Register)
}

func (s Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) InitiateEmailChange(ctx context.Context, uid, newEmail, password string) (*EmailChangeTicket, error) {
	return RunInitiateEmailChange(ctx, uid, newEmail, password, s.deps.EmailChange)
}

func (s Service) VerifyEmailChange(ctx context.Context, uid, code string) (*ProfileRecord, error) {
	return RunVerifyEmailChange(ctx, uid, code, s.deps.EmailChange)
}

func (s Service) CancelEmailChange(ctx context.Context, uid string) error {
	return RunCancelEmailChange(ctx, uid, s.deps.EmailChange)
}

func (s Service) SendEmailVerification(ctx context.Context, uid string) error {
	return RunSendEmailVerification(ctx, uid, s.deps.AccountEmail)
}

func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	return RunRequestPasswordReset(ctx, email, s.deps.AccountEmail)
}

func (s Service) Logout(ctx context.Context, uid string) error {
	return RunLogout(ctx, uid, s.deps.AccountEmail)
}
