package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrOriginRejected is returned when neither Origin nor Referer matches the
// allow-list.
var ErrOriginRejected = errors.New("origin not allowed")

// OriginsFromURLs derives allow-list entries from application URLs. Paths
// and queries are dropped; default ports are made explicit.
func OriginsFromURLs(urls ...string) ([]string, error) {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		origin, ok := normalizeOrigin(raw)
		if !ok {
			return nil, fmt.Errorf("middleware: invalid application url %q", raw)
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out, nil
}

type originAllowList map[string]struct{}

func newOriginAllowList(origins []string) (originAllowList, error) {
	normalized, err := OriginsFromURLs(origins...)
	if err != nil {
		return nil, err
	}
	list := make(originAllowList, len(normalized))
	for _, o := range normalized {
		list[o] = struct{}{}
	}
	return list, nil
}

// allows checks Origin first and falls back to Referer. A request with
// neither is rejected.
func (l originAllowList) allows(r *http.Request) bool {
	source := strings.TrimSpace(r.Header.Get("Origin"))
	if source == "" || source == "null" {
		source = strings.TrimSpace(r.Header.Get("Referer"))
	}
	if source == "" {
		return false
	}
	origin, ok := normalizeOrigin(source)
	if !ok {
		return false
	}
	_, ok = l[origin]
	return ok
}

func normalizeOrigin(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())
	if host == "" || (scheme != "http" && scheme != "https") {
		return "", false
	}
	port := parsed.Port()
	if port == "" {
		port = defaultPortForScheme(scheme)
	}
	return scheme + "://" + host + ":" + port, true
}

func defaultPortForScheme(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}
