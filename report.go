package goIdentity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// RedactedValue replaces secret values in error reports.
const RedactedValue = "[redacted]"

var defaultRedactKeys = []string{
	"password",
	"token",
	"secret",
	"cookie",
	"authorization",
	"code",
	"csrf",
}

var scrubbedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-Csrf-Token",
	"Proxy-Authorization",
}

// ReportError forwards an error from outside the Engine, such as a
// recovered HTTP panic, through the same filtering and redaction the Engine
// applies to its own failures.
func (e *Engine) ReportError(ctx context.Context, report ErrorReport) {
	if e == nil || report.Err == nil {
		return
	}
	e.forward(ctx, report)
}

func (e *Engine) report(ctx context.Context, op, userID string, err error, tags map[string]string) {
	if e == nil || err == nil {
		return
	}
	e.forward(ctx, ErrorReport{
		Operation: op,
		UserID:    userID,
		Err:       err,
		Tags:      tags,
	})
}

func (e *Engine) forward(ctx context.Context, report ErrorReport) {
	if e.reporter == nil || !e.config.Reporting.Enabled {
		return
	}
	if !shouldReport(report.Err) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	keys := e.redactKeys()
	report.Extra = redactFields(report.Extra, keys)
	report.Tags = redactTags(report.Tags, keys)
	if report.Request != nil {
		report.Request = scrubRequest(report.Request)
	}

	e.metricInc(MetricErrorReported)
	e.reporter.Report(ctx, report)
}

// shouldReport reports whether err is unexpected enough for error tracking.
// Credential, validation and user-actionable outcomes are expected.
func shouldReport(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrCredentialRejected),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrEmailChangeRateLimited),
		errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrEmailInUse),
		errors.Is(err, ErrNoPendingChange),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRejected),
		errors.Is(err, ErrRefreshToken),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (e *Engine) redactKeys() []string {
	if len(e.config.Reporting.RedactKeys) == 0 {
		return defaultRedactKeys
	}
	keys := make([]string, 0, len(defaultRedactKeys)+len(e.config.Reporting.RedactKeys))
	keys = append(keys, defaultRedactKeys...)
	for _, k := range e.config.Reporting.RedactKeys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func isSecretKey(key string, keys []string) bool {
	key = strings.ToLower(key)
	for _, k := range keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

func redactFields(fields map[string]any, keys []string) map[string]any {
	if len(fields) == 0 {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSecretKey(k, keys) {
			out[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redactFields(nested, keys)
			continue
		}
		out[k] = v
	}
	return out
}

func redactTags(tags map[string]string, keys []string) map[string]string {
	if len(tags) == 0 {
		return tags
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if isSecretKey(k, keys) {
			v = RedactedValue
		}
		out[k] = v
	}
	return out
}

// scrubRequest returns a shallow copy of r without credentials. The body is
// never forwarded.
func scrubRequest(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	for _, h := range scrubbedHeaders {
		out.Header.Del(h)
	}
	out.Body = http.NoBody
	out.Form = nil
	out.PostForm = nil
	out.MultipartForm = nil
	if out.URL != nil {
		q := out.URL.Query()
		changed := false
		for k := range q {
			if isSecretKey(k, defaultRedactKeys) {
				q.Set(k, RedactedValue)
				changed = true
			}
		}
		if changed {
			out.URL.RawQuery = q.Encode()
		}
	}
	return out
}
