package middleware

import (
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// RequestMeta attaches the client IP and User-Agent to the request context
// for login throttling and audit records. proxyHops is passed to [ClientIP].
func RequestMeta(proxyHops int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := goIdentity.WithClientIP(r.Context(), ClientIP(r, proxyHops))
			ctx = goIdentity.WithUserAgent(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
