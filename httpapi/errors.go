package httpapi

import (
	"errors"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/csrf"
	"github.com/MrEthical07/goIdentity/middleware"
)

const (
	msgInternal           = "internal error"
	msgInvalidCredentials = "invalid email or password"
	msgUnauthorized       = "authentication required"
	msgForbidden          = "request rejected"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
	// expose renders err.Error() instead of message for user-actionable
	// failures.
	expose bool
}

var errorMappings = []errorMapping{
	// Server-side failures first: they may wrap caller-facing errors.
	{target: goIdentity.ErrAuthenticationFailed, status: http.StatusInternalServerError, code: "authentication_failed", message: msgInternal},
	{target: goIdentity.ErrAccountIncomplete, status: http.StatusInternalServerError, code: "account_incomplete", message: msgInternal},
	{target: goIdentity.ErrDownstream, status: http.StatusInternalServerError, code: "downstream_error", message: msgInternal},
	{target: goIdentity.ErrEngineNotReady, status: http.StatusServiceUnavailable, code: "unavailable", message: msgInternal},
	{target: goIdentity.ErrValidation, status: http.StatusBadRequest, code: "validation_failed", expose: true},
	{target: goIdentity.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "invalid_credentials", message: msgInvalidCredentials},
	{target: goIdentity.ErrDuplicateAccount, status: http.StatusBadRequest, code: "duplicate_account", message: "an account with this email already exists"},
	{target: goIdentity.ErrEmailInUse, status: http.StatusConflict, code: "email_in_use", message: "email address is already in use"},
	{target: goIdentity.ErrNoPendingChange, status: http.StatusBadRequest, code: "no_pending_change", message: "no email change is pending"},
	{target: goIdentity.ErrInvalidToken, status: http.StatusBadRequest, code: "invalid_token", message: "verification code is invalid"},
	{target: goIdentity.ErrTokenExpired, status: http.StatusBadRequest, code: "token_expired", message: "verification code has expired"},
	{target: goIdentity.ErrRefreshToken, status: http.StatusUnauthorized, code: "refresh_token_invalid", message: "session expired, please log in again"},
	{target: goIdentity.ErrUnauthorized, status: http.StatusUnauthorized, code: "unauthorized", message: msgUnauthorized},
	{target: goIdentity.ErrLoginRateLimited, status: http.StatusTooManyRequests, code: "rate_limited", message: "too many attempts, try again later"},
	{target: goIdentity.ErrEmailChangeRateLimited, status: http.StatusTooManyRequests, code: "rate_limited", message: "too many attempts, try again later"},
	{target: middleware.ErrThrottled, status: http.StatusTooManyRequests, code: "rate_limited", message: "too many requests"},
	{target: middleware.ErrOriginRejected, status: http.StatusForbidden, code: "forbidden", message: msgForbidden},
	{target: csrf.ErrMissingToken, status: http.StatusForbidden, code: "csrf_failed", message: msgForbidden},
	{target: csrf.ErrMissingSecret, status: http.StatusForbidden, code: "csrf_failed", message: msgForbidden},
	{target: csrf.ErrInvalidToken, status: http.StatusForbidden, code: "csrf_failed", message: msgForbidden},
}

// classify maps err to a status and response body. ok is false for errors
// outside the taxonomy.
func classify(err error) (status int, detail errorDetail, ok bool) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if m.expose {
			msg = err.Error()
		}
		return m.status, errorDetail{Code: m.code, Message: msg}, true
	}
	return http.StatusInternalServerError, errorDetail{Code: "internal_error", Message: msgInternal}, false
}

// writeError adapts fail to middleware.ErrorWriter. The status comes from
// the error taxonomy, not the middleware's suggestion.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, _ int, err error) {
	s.fail(w, r, err)
}

// fail renders err. A refresh failure also clears the refresh cookie.
// Errors outside the taxonomy are reported with the request attached.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail, known := classify(err)

	if errors.Is(err, goIdentity.ErrRefreshToken) {
		s.clearRefreshCookie(w)
	}
	if !known {
		s.svc.ReportError(r.Context(), goIdentity.ErrorReport{
			Operation: "http." + r.Method + " " + r.URL.Path,
			Err:       err,
			Request:   r,
		})
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("httpapi: request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(w, status, errorBody{Error: detail})
}
