package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

// Service is the part of *goIdentity.Engine the HTTP surface drives.
type Service interface {
	Register(ctx context.Context, req goIdentity.RegisterRequest) (*goIdentity.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*goIdentity.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*goIdentity.RefreshResult, error)
	Logout(ctx context.Context, uid string) error
	Authenticate(ctx context.Context, idToken string) (*goIdentity.Identity, error)
	GetProfile(ctx context.Context, uid string) (*goIdentity.Profile, error)
	SendEmailVerification(ctx context.Context, uid string) error
	RequestPasswordReset(ctx context.Context, email string) error
	InitiateEmailChange(ctx context.Context, uid, newEmail, password string) (*goIdentity.EmailChangeTicket, error)
	VerifyEmailChange(ctx context.Context, uid, code string) (*goIdentity.Profile, error)
	CancelEmailChange(ctx context.Context, uid string) error
	ReportError(ctx context.Context, report goIdentity.ErrorReport)
	ProductionMode() bool
}

var _ Service = (*goIdentity.Engine)(nil)

// preSessionRoutes skip the CSRF token check.
var preSessionRoutes = []string{
	"/register",
	"/login",
	"/refresh-token",
	"/reset-password",
}

// Server is the HTTP handler for the identity routes.
type Server struct {
	svc     Service
	config  Config
	logger  *slog.Logger
	handler http.Handler
}

// New validates cfg and assembles the route table and middleware chain.
func New(svc Service, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, goIdentity.ErrEngineNotReady
	}
	production := svc.ProductionMode()
	if err := cfg.validate(production); err != nil {
		return nil, err
	}

	s := &Server{svc: svc, config: cfg, logger: cfg.Logger}

	protect, err := middleware.CSRF(middleware.CSRFConfig{
		Exempt:         preSessionRoutes,
		AllowedOrigins: cfg.AllowedOrigins,
		EnforceOrigin:  production,
		Secure:         cfg.CookieSecure,
		SameSite:       cfg.CookieSameSite,
		ErrorWriter:    s.writeError,
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: csrf: %w", err)
	}
	throttle := middleware.Throttle(middleware.ThrottleConfig{
		RPS:         cfg.PreSessionRPS,
		Burst:       cfg.PreSessionBurst,
		ProxyHops:   cfg.proxyHops(),
		ErrorWriter: s.writeError,
	})
	session := middleware.RequireSession(svc, s.writeError)

	mux := http.NewServeMux()
	mux.Handle("POST /register", throttle(http.HandlerFunc(s.handleRegister)))
	mux.Handle("POST /login", throttle(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /refresh-token", throttle(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("POST /reset-password", throttle(http.HandlerFunc(s.handleResetPassword)))

	mux.Handle("POST /verify-email", session(http.HandlerFunc(s.handleVerifyEmail)))
	mux.Handle("POST /change-email", session(http.HandlerFunc(s.handleChangeEmail)))
	mux.Handle("DELETE /change-email", session(http.HandlerFunc(s.handleCancelEmailChange)))
	mux.Handle("POST /verify-email-change", session(http.HandlerFunc(s.handleVerifyEmailChange)))
	mux.Handle("POST /logout", session(http.HandlerFunc(s.handleLogout)))
	mux.Handle("GET /me", session(http.HandlerFunc(s.handleMe)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	s.handler = s.recoverer(middleware.RequestMeta(cfg.proxyHops())(protect(mux)))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// recoverer converts a handler panic into a 500 and reports it with the
// scrubbed request attached.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := fmt.Errorf("panic: %v", rec)
			s.logger.Error("httpapi: handler panic", "method", r.Method, "path", r.URL.Path, "error", err)
			s.svc.ReportError(r.Context(), goIdentity.ErrorReport{
				Operation: "http.panic",
				Err:       err,
				Request:   r,
			})
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
				Code:    "internal_error",
				Message: msgInternal,
			}})
		}()
		next.ServeHTTP(w, r)
	})
}
