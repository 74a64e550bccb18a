package httpapi

import (
	"context"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changeEmailRequest struct {
	NewEmail string `json:"newEmail"`
	Password string `json:"password"`
}

type verifyEmailChangeRequest struct {
	VerificationToken string `json:"verificationToken"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.svc.Register(r.Context(), goIdentity.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Profile: goIdentity.ProfileFields{
			DisplayName: req.DisplayName,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
		},
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if res.Tokens != nil {
		s.setRefreshCookie(w, res.Tokens.RefreshToken)
	}
	body := newSessionJSON(res.Profile, res.Tokens)
	body.Message = res.Message
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.setRefreshCookie(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, newSessionJSON(res.Profile, &res.Tokens))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := s.refreshCookie(r)
	if token == "" {
		s.fail(w, r, goIdentity.ErrRefreshToken)
		return
	}

	res, err := s.svc.Refresh(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.setRefreshCookie(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, newSessionJSON(res.Profile, &res.Tokens))
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := s.decodeJSON(w, r, &req); err == nil {
		if err := s.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
			s.logger.Debug("httpapi: password reset not queued", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, messageJSON{Message: "if the address is registered, a reset link has been sent"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := s.svc.SendEmailVerification(r.Context(), id.UID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageJSON{Message: "verification email sent"})
}

func (s *Server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	var req changeEmailRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	ticket, err := s.svc.InitiateEmailChange(r.Context(), id.UID, req.NewEmail, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message      string `json:"message"`
		PendingEmail string `json:"pendingEmail"`
		ExpiresAt    string `json:"expiresAt"`
	}{
		Message:      "verification code sent",
		PendingEmail: ticket.PendingEmail,
		ExpiresAt:    ticket.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCancelEmailChange(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := s.svc.CancelEmailChange(r.Context(), id.UID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageJSON{Message: "email change cancelled"})
}

func (s *Server) handleVerifyEmailChange(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	var req verifyEmailChangeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	p, err := s.svc.VerifyEmailChange(r.Context(), id.UID, req.VerificationToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message string   `json:"message"`
		User    userJSON `json:"user"`
	}{
		Message: "email changed",
		User:    toUserJSON(*p),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := s.svc.Logout(r.Context(), id.UID); err != nil {
		s.logger.Warn("httpapi: logout failed", "error", err)
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageJSON{Message: "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	p, err := s.svc.GetProfile(r.Context(), id.UID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		User userJSON `json:"user"`
	}{User: toUserJSON(*p)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.HealthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.config.HealthChecks))
	for name, check := range s.config.HealthChecks {
		if err := check(ctx); err != nil {
			s.logger.Warn("httpapi: health check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: state, Checks: checks})
}
