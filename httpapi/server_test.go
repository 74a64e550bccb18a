package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/gateway/local"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/profile/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret123"

type captureNotifier struct {
	mu   sync.Mutex
	msgs []goIdentity.Message
}

func (c *captureNotifier) Notify(_ context.Context, msg goIdentity.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Kind == goIdentity.MessageEmailChangeCode {
			return c.msgs[i].Code
		}
	}
	t.Fatal("no email change code sent")
	return ""
}

type testEnv struct {
	engine   *goIdentity.Engine
	notifier *captureNotifier
	server   *httptest.Server
	client   *http.Client
}

func newEngine(t *testing.T, mutate func(*goIdentity.Config)) (*goIdentity.Engine, *captureNotifier) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gwCfg := local.DefaultConfig([]byte(strings.Repeat("k", 32)))
	gwCfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	gw, err := local.New(rdb, gwCfg)
	require.NoError(t, err)

	cfg := goIdentity.DefaultConfig()
	cfg.Notifications.DropIfFull = false
	if mutate != nil {
		mutate(&cfg)
	}

	notifier := &captureNotifier{}
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithGateway(gw).
		WithProfileStore(memory.New()).
		WithNotifier(notifier).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, notifier
}

func newTestEnv(t *testing.T, mutateHTTP func(*httpapi.Config)) *testEnv {
	t.Helper()

	engine, notifier := newEngine(t, nil)
	cfg := httpapi.DefaultConfig()
	cfg.PreSessionRPS = 0
	if mutateHTTP != nil {
		mutateHTTP(&cfg)
	}
	srv, err := httpapi.New(engine, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{
		engine:   engine,
		notifier: notifier,
		server:   ts,
		client:   &http.Client{Jar: jar},
	}
}

type request struct {
	method  string
	path    string
	body    any
	bearer  string
	csrf    string
	cookies []*http.Cookie
	headers map[string]string
	// noJar sends the request without the session cookie jar.
	noJar bool
}

type response struct {
	status  int
	header  http.Header
	cookies []*http.Cookie
	body    map[string]any
}

func (env *testEnv) do(t *testing.T, req request) response {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	httpReq, err := http.NewRequest(req.method, env.server.URL+req.path, &body)
	require.NoError(t, err)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.csrf != "" {
		httpReq.Header.Set(middleware.DefaultCSRFHeader, req.csrf)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	for _, c := range req.cookies {
		httpReq.AddCookie(c)
	}

	client := env.client
	if req.noJar {
		client = &http.Client{}
	}
	resp, err := client.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, header: resp.Header, cookies: resp.Cookies()}
	_ = json.NewDecoder(resp.Body).Decode(&out.body)
	return out
}

func (r response) cookie(name string) *http.Cookie {
	for _, c := range r.cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (r response) errorCode() string {
	e, _ := r.body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (r response) token() string {
	tok, _ := r.body["token"].(string)
	return tok
}

func (r response) user() map[string]any {
	u, _ := r.body["user"].(map[string]any)
	return u
}

func (env *testEnv) registerAndLogin(t *testing.T, email string) (idToken string, refresh *http.Cookie) {
	t.Helper()
	reg := env.do(t, request{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": email, "password": testPassword, "displayName": "Test",
	}})
	require.Equal(t, http.StatusOK, reg.status, "register: %v", reg.body)

	login := env.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": email, "password": testPassword,
	}})
	require.Equal(t, http.StatusOK, login.status, "login: %v", login.body)
	refresh = login.cookie("refresh_token")
	require.NotNil(t, refresh)
	return login.token(), refresh
}

// csrfToken mints a token through a safe request; the secret cookie lands
// in the jar.
func (env *testEnv) csrfToken(t *testing.T, idToken string) string {
	t.Helper()
	me := env.do(t, request{method: http.MethodGet, path: "/me", bearer: idToken})
	require.Equal(t, http.StatusOK, me.status)
	token := me.header.Get(middleware.DefaultCSRFHeader)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterIssuesSessionAndRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, request{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": "ada@example.com", "password": testPassword, "firstName": "Ada", "lastName": "Lovelace",
	}})
	require.Equal(t, http.StatusOK, res.status)
	assert.NotEmpty(t, res.token())
	assert.Equal(t, "ada@example.com", res.user()["email"])
	assert.Equal(t, "Ada", res.user()["firstName"])

	refresh := res.cookie("refresh_token")
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	assert.NotContains(t, res.body, "refreshToken")

	dup := env.do(t, request{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": "ada@example.com", "password": testPassword,
	}})
	assert.Equal(t, http.StatusBadRequest, dup.status)
	assert.Equal(t, "duplicate_account", dup.errorCode())

	invalid := env.do(t, request{method: http.MethodPost, path: "/register", body: map[string]string{
		"email": "not-an-email", "password": testPassword,
	}})
	assert.Equal(t, http.StatusBadRequest, invalid.status)
	assert.Equal(t, "validation_failed", invalid.errorCode())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerAndLogin(t, "bob@example.com")

	wrong := env.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "bob@example.com", "password": "wrong-pass",
	}, noJar: true})
	unknown := env.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "nobody@example.com", "password": "wrong-pass",
	}, noJar: true})

	for _, res := range []response{wrong, unknown} {
		assert.Equal(t, http.StatusUnauthorized, res.status)
		assert.Equal(t, "invalid_credentials", res.errorCode())
		assert.Nil(t, res.cookie("refresh_token"))
	}
	assert.Equal(t, wrong.body, unknown.body)
}

func TestRefreshRotatesCookieAndRejectsReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	_, original := env.registerAndLogin(t, "cy@example.com")

	first := env.do(t, request{method: http.MethodPost, path: "/refresh-token", cookies: []*http.Cookie{original}, noJar: true})
	require.Equal(t, http.StatusOK, first.status, "refresh: %v", first.body)
	rotated := first.cookie("refresh_token")
	require.NotNil(t, rotated)
	assert.NotEqual(t, original.Value, rotated.Value)
	assert.NotEmpty(t, first.token())

	reused := env.do(t, request{method: http.MethodPost, path: "/refresh-token", cookies: []*http.Cookie{original}, noJar: true})
	assert.Equal(t, http.StatusUnauthorized, reused.status)
	assert.Equal(t, "refresh_token_invalid", reused.errorCode())
	cleared := reused.cookie("refresh_token")
	require.NotNil(t, cleared, "failed refresh must clear the cookie")
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	missing := env.do(t, request{method: http.MethodPost, path: "/refresh-token", noJar: true})
	assert.Equal(t, http.StatusUnauthorized, missing.status)
}

func TestCSRFGuardsSessionRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	idToken, _ := env.registerAndLogin(t, "dee@example.com")
	body := map[string]string{"newEmail": "dee2@example.com", "password": testPassword}

	noToken := env.do(t, request{method: http.MethodPost, path: "/change-email", bearer: idToken, body: body})
	assert.Equal(t, http.StatusForbidden, noToken.status, "valid bearer without csrf token")
	assert.Equal(t, "csrf_failed", noToken.errorCode())

	token := env.csrfToken(t, idToken)

	noCookie := env.do(t, request{method: http.MethodPost, path: "/change-email", bearer: idToken, csrf: token, body: body, noJar: true})
	assert.Equal(t, http.StatusForbidden, noCookie.status, "token without secret cookie")

	ok := env.do(t, request{method: http.MethodPost, path: "/change-email", bearer: idToken, csrf: token, body: body})
	assert.Equal(t, http.StatusOK, ok.status, "change-email: %v", ok.body)
	assert.Equal(t, "dee2@example.com", ok.body["pendingEmail"])

	noBearer := env.do(t, request{method: http.MethodPost, path: "/verify-email", csrf: token})
	assert.Equal(t, http.StatusUnauthorized, noBearer.status)

	badBearer := env.do(t, request{method: http.MethodGet, path: "/me", bearer: "not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, badBearer.status)

	login := env.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "dee@example.com", "password": testPassword,
	}, noJar: true})
	assert.Equal(t, http.StatusOK, login.status, "pre-session routes need no csrf token")
}

func TestPreSessionRoutesSkipCSRF(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path string
		body map[string]string
		want int
	}{
		{path: "/register", body: map[string]string{"email": "eve@example.com", "password": testPassword, "displayName": "Eve"}, want: http.StatusOK},
		{path: "/login", body: map[string]string{"email": "eve@example.com", "password": testPassword}, want: http.StatusOK},
		{path: "/refresh-token", want: http.StatusUnauthorized},
		{path: "/reset-password", body: map[string]string{"email": "eve@example.com"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		var body any
		if tt.body != nil {
			body = tt.body
		}
		resp := env.do(t, request{method: http.MethodPost, path: tt.path, body: body, noJar: true})
		assert.Equal(t, tt.want, resp.status, "%s: %v", tt.path, resp.body)
	}

	for _, path := range []string{"/verify-email", "/change-email", "/verify-email-change", "/logout"} {
		resp := env.do(t, request{method: http.MethodPost, path: path, noJar: true})
		assert.Equal(t, http.StatusForbidden, resp.status, path)
	}
}

func TestEmailChangeOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	idToken, _ := env.registerAndLogin(t, "eve@example.com")
	token := env.csrfToken(t, idToken)

	post := func(path string, body any) response {
		return env.do(t, request{method: http.MethodPost, path: path, bearer: idToken, csrf: token, body: body})
	}

	noPending := post("/verify-email-change", map[string]string{"verificationToken": "123456"})
	assert.Equal(t, http.StatusBadRequest, noPending.status)
	assert.Equal(t, "no_pending_change", noPending.errorCode())

	wrongPass := post("/change-email", map[string]string{"newEmail": "eve2@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, wrongPass.status)

	require.Equal(t, http.StatusOK, post("/change-email", map[string]string{"newEmail": "eve2@example.com", "password": testPassword}).status)
	code := env.notifier.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	bad := post("/verify-email-change", map[string]string{"verificationToken": wrong})
	assert.Equal(t, http.StatusBadRequest, bad.status)
	assert.Equal(t, "invalid_token", bad.errorCode())

	done := post("/verify-email-change", map[string]string{"verificationToken": code})
	require.Equal(t, http.StatusOK, done.status, "verify: %v", done.body)
	assert.Equal(t, "eve2@example.com", done.user()["email"])
	assert.NotContains(t, done.user(), "pendingEmail")

	relogin := env.do(t, request{method: http.MethodPost, path: "/login", body: map[string]string{
		"email": "eve2@example.com", "password": testPassword,
	}, noJar: true})
	assert.Equal(t, http.StatusOK, relogin.status)
}

func TestCancelEmailChange(t *testing.T) {
	env := newTestEnv(t, nil)
	idToken, _ := env.registerAndLogin(t, "fay@example.com")
	token := env.csrfToken(t, idToken)

	res := env.do(t, request{method: http.MethodPost, path: "/change-email", bearer: idToken, csrf: token,
		body: map[string]string{"newEmail": "fay2@example.com", "password": testPassword}})
	require.Equal(t, http.StatusOK, res.status)

	cancel := env.do(t, request{method: http.MethodDelete, path: "/change-email", bearer: idToken, csrf: token})
	assert.Equal(t, http.StatusOK, cancel.status)

	me := env.do(t, request{method: http.MethodGet, path: "/me", bearer: idToken})
	assert.NotContains(t, me.user(), "pendingEmail")
}

func TestResetPasswordAlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []any{
		map[string]string{"email": "ghost@example.com"},
		map[string]string{"email": "not-an-email"},
		nil,
	} {
		res := env.do(t, request{method: http.MethodPost, path: "/reset-password", body: body})
		assert.Equal(t, http.StatusOK, res.status)
	}
}

func TestLogoutClearsAndRevokesRefresh(t *testing.T) {
	env := newTestEnv(t, nil)
	idToken, refresh := env.registerAndLogin(t, "gus@example.com")
	token := env.csrfToken(t, idToken)

	res := env.do(t, request{method: http.MethodPost, path: "/logout", bearer: idToken, csrf: token})
	require.Equal(t, http.StatusOK, res.status)
	cleared := res.cookie("refresh_token")
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	after := env.do(t, request{method: http.MethodPost, path: "/refresh-token", cookies: []*http.Cookie{refresh}, noJar: true})
	assert.Equal(t, http.StatusUnauthorized, after.status)
}

func TestHealthAndMetrics(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	env := newTestEnv(t, func(cfg *httpapi.Config) {
		cfg.HealthChecks = map[string]httpapi.HealthCheck{
			"redis": func(context.Context) error {
				if healthy.Load() {
					return nil
				}
				return errors.New("down")
			},
		}
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("{}"))
		})
	})

	ok := env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, ok.status)
	assert.Equal(t, "ok", ok.body["status"])

	healthy.Store(false)
	down := env.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, down.status)

	metrics := env.do(t, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, metrics.status)
}

func TestPreSessionThrottle(t *testing.T) {
	env := newTestEnv(t, func(cfg *httpapi.Config) {
		cfg.PreSessionRPS = 0.001
		cfg.PreSessionBurst = 2
	})

	var last response
	for i := 0; i < 3; i++ {
		last = env.do(t, request{method: http.MethodPost, path: "/reset-password", body: map[string]string{"email": "x@example.com"}})
	}
	assert.Equal(t, http.StatusTooManyRequests, last.status)
	assert.Equal(t, "rate_limited", last.errorCode())
}

func TestPreSessionThrottleKeysOnTrustedHop(t *testing.T) {
	env := newTestEnv(t, func(cfg *httpapi.Config) {
		cfg.PreSessionRPS = 0.001
		cfg.PreSessionBurst = 1
		cfg.TrustForwardedFor = true
	})

	statuses := make([]int, 0, 3)
	for _, forged := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		resp := env.do(t, request{
			method:  http.MethodPost,
			path:    "/reset-password",
			body:    map[string]string{"email": "x@example.com"},
			headers: map[string]string{"X-Forwarded-For": forged + ", 203.0.113.9"},
		})
		statuses = append(statuses, resp.status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, statuses)
}

func TestTrustForwardedForRequiresProxyHops(t *testing.T) {
	engine, _ := newEngine(t, nil)
	cfg := httpapi.DefaultConfig()
	cfg.TrustForwardedFor = true
	cfg.TrustedProxyHops = 0

	_, err := httpapi.New(engine, cfg)
	require.Error(t, err)
}

func TestProductionRequiresAllowedOrigin(t *testing.T) {
	engine, _ := newEngine(t, func(cfg *goIdentity.Config) {
		cfg.ProductionMode = true
		cfg.EmailChange.CodeHashKey = []byte(strings.Repeat("h", 32))
	})

	_, err := httpapi.New(engine, httpapi.DefaultConfig())
	require.Error(t, err, "production mode needs an origin allow-list")

	cfg := httpapi.DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	cfg.PreSessionRPS = 0
	srv, err := httpapi.New(engine, cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	env := &testEnv{engine: engine, server: ts, client: &http.Client{}}
	creds := map[string]string{"email": "hal@example.com", "password": testPassword}

	foreign := env.do(t, request{method: http.MethodPost, path: "/login", body: creds,
		headers: map[string]string{"Origin": "https://evil.example.com"}})
	assert.Equal(t, http.StatusForbidden, foreign.status)

	missing := env.do(t, request{method: http.MethodPost, path: "/login", body: creds})
	assert.Equal(t, http.StatusForbidden, missing.status)

	allowed := env.do(t, request{method: http.MethodPost, path: "/login", body: creds,
		headers: map[string]string{"Origin": "https://app.example.com"}})
	assert.Equal(t, http.StatusUnauthorized, allowed.status, "origin passes; credentials are unknown")
}

type panickingService struct {
	httpapi.Service
	mu      sync.Mutex
	reports []goIdentity.ErrorReport
}

func (p *panickingService) Login(context.Context, string, string) (*goIdentity.LoginResult, error) {
	panic("boom")
}

func (p *panickingService) ReportError(_ context.Context, report goIdentity.ErrorReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
}

func TestPanicIsRecoveredAndReported(t *testing.T) {
	engine, _ := newEngine(t, nil)
	svc := &panickingService{Service: engine}
	cfg := httpapi.DefaultConfig()
	cfg.PreSessionRPS = 0
	srv, err := httpapi.New(svc, cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.reports, 1)
	assert.Equal(t, "http.panic", svc.reports[0].Operation)
	assert.NotNil(t, svc.reports[0].Request)
}
