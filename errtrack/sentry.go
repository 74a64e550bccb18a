package errtrack

import (
	"context"
	"net/http"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/getsentry/sentry-go"
)

var sensitiveHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"Proxy-Authorization",
	"X-Csrf-Token",
}

// Sentry reports to a Sentry project through its own hub, leaving the
// global hub untouched.
type Sentry struct {
	hub *sentry.Hub
}

var _ goIdentity.ErrorReporter = (*Sentry)(nil)

// NewSentry builds a client from opts. Any BeforeSend in opts runs after
// the reporter's own scrubbing.
func NewSentry(opts sentry.ClientOptions) (*Sentry, error) {
	next := opts.BeforeSend
	opts.BeforeSend = func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
		scrubEvent(event)
		if next != nil {
			return next(event, hint)
		}
		return event
	}
	opts.SendDefaultPII = false

	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report implements goIdentity.ErrorReporter.
func (s *Sentry) Report(_ context.Context, report goIdentity.ErrorReport) {
	if report.Err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		if report.Operation != "" {
			scope.SetTag("operation", report.Operation)
		}
		for k, v := range report.Tags {
			scope.SetTag(k, v)
		}
		if report.UserID != "" {
			scope.SetUser(sentry.User{ID: report.UserID})
		}
		if len(report.Extra) > 0 {
			scope.SetContext("goidentity", sentry.Context(report.Extra))
		}
		if report.Request != nil {
			scope.SetRequest(report.Request)
		}
		s.hub.CaptureException(report.Err)
	})
}

// Flush waits up to timeout for buffered events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}

func scrubEvent(event *sentry.Event) {
	if event == nil || event.Request == nil {
		return
	}
	event.Request.Cookies = ""
	for name := range event.Request.Headers {
		if isSensitiveHeader(name) {
			delete(event.Request.Headers, name)
		}
	}
}

func isSensitiveHeader(name string) bool {
	name = http.CanonicalHeaderKey(strings.TrimSpace(name))
	for _, h := range sensitiveHeaders {
		if name == h {
			return true
		}
	}
	return false
}
