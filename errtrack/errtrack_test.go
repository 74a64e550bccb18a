package errtrack

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestSentryReportCarriesTagsAndScrubsRequest(t *testing.T) {
	var got captured
	reporter, err := NewSentry(sentry.ClientOptions{BeforeSend: got.beforeSend})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/refresh", nil)
	req.Header.Set("Authorization", "Bearer id-token")
	req.Header.Set("Cookie", "refresh_token=secret")
	req.Header.Set("User-Agent", "test-agent")

	reporter.Report(context.Background(), goIdentity.ErrorReport{
		Operation: "register.compensate",
		UserID:    "uid-1",
		Err:       errors.New("delete identity failed"),
		Tags:      map[string]string{"orphan_uid": "uid-1"},
		Extra:     map[string]any{"email": "a@example.com"},
		Request:   req,
	})
	reporter.Flush(0)

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.events, 1)
	ev := got.events[0]

	assert.Equal(t, "register.compensate", ev.Tags["operation"])
	assert.Equal(t, "uid-1", ev.Tags["orphan_uid"])
	assert.Equal(t, "uid-1", ev.User.ID)
	require.NotNil(t, ev.Request)
	assert.Empty(t, ev.Request.Cookies)
	for name := range ev.Request.Headers {
		assert.False(t, isSensitiveHeader(name), "header %s must be scrubbed", name)
	}
	require.NotEmpty(t, ev.Exception)
	assert.Equal(t, "delete identity failed", ev.Exception[len(ev.Exception)-1].Value)
}

func TestSentryIgnoresNilError(t *testing.T) {
	var got captured
	reporter, err := NewSentry(sentry.ClientOptions{BeforeSend: got.beforeSend})
	require.NoError(t, err)

	reporter.Report(context.Background(), goIdentity.ErrorReport{Operation: "noop"})

	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Empty(t, got.events)
}

func TestIsSensitiveHeader(t *testing.T) {
	assert.True(t, isSensitiveHeader("authorization"))
	assert.True(t, isSensitiveHeader("x-csrf-token"))
	assert.False(t, isSensitiveHeader("User-Agent"))
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Report(context.Background(), goIdentity.ErrorReport{
		Operation: "login",
		UserID:    "uid-9",
		Err:       errors.New("gateway timeout"),
		Tags:      map[string]string{"stage": "exchange"},
		Request:   httptest.NewRequest("POST", "/login", nil),
	})

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"operation":"login"`)
	assert.Contains(t, out, `"tag.stage":"exchange"`)
	assert.Contains(t, out, `"path":"/login"`)
}
