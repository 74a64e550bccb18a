package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MrEthical07/goIdentity/csrf"
)

const (
	DefaultCSRFCookie    = "csrf_secret"
	DefaultCSRFHeader    = "X-CSRF-Token"
	DefaultCSRFFormField = "_csrf"

	maxCSRFBodyBytes = 1 << 20
)

// CSRFConfig configures [CSRF].
type CSRFConfig struct {
	CookieName string
	HeaderName string
	// FormField is also looked up as a top-level JSON string field.
	FormField string
	// Exempt lists request paths that skip the token check. They are still
	// Origin-checked when EnforceOrigin is set.
	Exempt []string
	// AllowedOrigins are application URLs; see [OriginsFromURLs].
	AllowedOrigins []string
	EnforceOrigin  bool
	Secure         bool
	SameSite       http.SameSite
	ErrorWriter    ErrorWriter
}

func (c *CSRFConfig) applyDefaults() {
	if c.CookieName == "" {
		c.CookieName = DefaultCSRFCookie
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultCSRFHeader
	}
	if c.FormField == "" {
		c.FormField = DefaultCSRFFormField
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	if c.ErrorWriter == nil {
		c.ErrorWriter = defaultErrorWriter
	}
}

// CSRF returns double-submit protection. Safe requests receive a fresh
// token in the response header, creating the secret cookie when absent.
// Unsafe requests must echo a token that verifies against the cookie.
func CSRF(cfg CSRFConfig) (func(http.Handler) http.Handler, error) {
	cfg.applyDefaults()
	if cfg.EnforceOrigin && len(cfg.AllowedOrigins) == 0 {
		return nil, errors.New("middleware: origin enforcement requires allowed origins")
	}
	origins, err := newOriginAllowList(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if err := issueToken(w, r, cfg); err != nil {
					cfg.ErrorWriter(w, r, http.StatusInternalServerError, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if cfg.EnforceOrigin && !origins.allows(r) {
				cfg.ErrorWriter(w, r, http.StatusForbidden, ErrOriginRejected)
				return
			}
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var secret string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				secret = c.Value
			}
			if err := csrf.Verify(secret, requestToken(r, cfg)); err != nil {
				cfg.ErrorWriter(w, r, http.StatusForbidden, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

func issueToken(w http.ResponseWriter, r *http.Request, cfg CSRFConfig) error {
	var secret string
	if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
		secret = c.Value
	} else {
		secret, err = csrf.NewSecret()
		if err != nil {
			return err
		}
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    secret,
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		})
	}

	token, err := csrf.NewToken(secret)
	if err != nil {
		return err
	}
	w.Header().Set(cfg.HeaderName, token)
	return nil
}

// requestToken reads the header first, then the body field. The body is
// restored for the handler.
func requestToken(r *http.Request, cfg CSRFConfig) string {
	if token := strings.TrimSpace(r.Header.Get(cfg.HeaderName)); token != "" {
		return token
	}
	if r.Body == nil {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCSRFBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}
		var fields map[string]json.RawMessage
		if json.Unmarshal(body, &fields) != nil {
			return ""
		}
		var token string
		if json.Unmarshal(fields[cfg.FormField], &token) != nil {
			return ""
		}
		return token
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, maxCSRFBodyBytes)
		return r.PostFormValue(cfg.FormField)
	default:
		return ""
	}
}
