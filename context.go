package goIdentity

import "context"

// requestMeta is what the HTTP layer knows about the caller.
type requestMeta struct {
	clientIP  string
	userAgent string
}

type requestMetaKey struct{}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

// WithClientIP attaches the caller's IP address to ctx. Login throttling
// keys on it when Config.Login.EnableIPThrottle is set, and audit events
// record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	m := metaFrom(ctx)
	m.clientIP = ip
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithUserAgent attaches the caller's User-Agent to ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	m := metaFrom(ctx)
	m.userAgent = userAgent
	return context.WithValue(ctx, requestMetaKey{}, m)
}

func clientIPFromContext(ctx context.Context) string {
	return metaFrom(ctx).clientIP
}

func userAgentFromContext(ctx context.Context) string {
	return metaFrom(ctx).userAgent
}
