package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Authenticator verifies a bearer token. *goIdentity.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (*goIdentity.Identity, error)
}

// ErrorWriter renders a rejected request. status is the suggested HTTP
// status; err is the cause.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by [RequireSession].
func IdentityFromContext(ctx context.Context) (*goIdentity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*goIdentity.Identity)
	return id, ok && id != nil
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *goIdentity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// RequireSession rejects requests without a valid bearer token before the
// handler runs. Provider failures are rendered as 500.
func RequireSession(auth Authenticator, writeError ErrorWriter) func(http.Handler) http.Handler {
	if writeError == nil {
		writeError = defaultErrorWriter
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, r, http.StatusUnauthorized, goIdentity.ErrUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, http.StatusUnauthorized, goIdentity.ErrUnauthorized)
				return
			}

			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, goIdentity.ErrUnauthorized) {
					status = http.StatusUnauthorized
				}
				writeError(w, r, status, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}

	return token, true
}
