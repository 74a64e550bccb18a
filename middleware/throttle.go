package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrThrottled is passed to the [ErrorWriter] when a client exceeds its
// request budget.
var ErrThrottled = errors.New("too many requests")

// ThrottleConfig configures [Throttle].
type ThrottleConfig struct {
	RPS     float64
	Burst   int
	IdleTTL time.Duration
	// ProxyHops is the number of trusted proxies in front of the server.
	// Zero ignores X-Forwarded-For. See [ClientIP].
	ProxyHops   int
	ErrorWriter ErrorWriter
}

// ipLimiter applies a token bucket per key and evicts idle keys.
type ipLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	byKey map[string]*ipEntry
	hits  uint64
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int, idleTTL time.Duration) *ipLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &ipLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		byKey:   make(map[string]*ipEntry),
	}
}

func (l *ipLimiter) allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Throttle rejects clients that exceed RPS with 429. A zero RPS or Burst
// disables it.
func Throttle(cfg ThrottleConfig) func(http.Handler) http.Handler {
	limiter := newIPLimiter(cfg.RPS, cfg.Burst, cfg.IdleTTL)
	writeError := cfg.ErrorWriter
	if writeError == nil {
		writeError = defaultErrorWriter
	}
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(ClientIP(r, cfg.ProxyHops)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, ErrThrottled)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address. With proxyHops > 0 it reads
// X-Forwarded-For from the right: each trusted proxy appends the peer it saw,
// so the entry proxyHops from the end is the last address no client could
// forge. Hops to its left are ignored. A chain shorter than proxyHops yields
// its leftmost entry.
func ClientIP(r *http.Request, proxyHops int) string {
	if proxyHops > 0 {
		if ip, ok := forwardedClient(r.Header.Values("X-Forwarded-For"), proxyHops); ok {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedClient(headers []string, proxyHops int) (string, bool) {
	var hops []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	if len(hops) == 0 {
		return "", false
	}
	i := len(hops) - proxyHops
	if i < 0 {
		i = 0
	}
	ip := net.ParseIP(hops[i])
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}
