package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.RefreshCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   int(s.config.RefreshCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: s.config.CookieSameSite,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: s.config.CookieSameSite,
	})
}

func (s *Server) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(s.config.RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
