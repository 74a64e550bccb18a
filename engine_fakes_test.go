package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeIdentity struct {
	ExternalIdentity
	password string
}

// fakeGateway is an in-memory CredentialGateway with single-use refresh tokens.
type fakeGateway struct {
	mu         sync.Mutex
	identities map[string]*fakeIdentity
	byEmail    map[string]string
	refresh    map[string]string
	seq        int
	revoked    map[string]int

	verifyErr   error
	exchangeErr error
	deleteErr   error
	updateErr   error
	claims      map[string]map[string]any
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		identities: map[string]*fakeIdentity{},
		byEmail:    map[string]string{},
		refresh:    map[string]string{},
		revoked:    map[string]int{},
		claims:     map[string]map[string]any{},
	}
}

func (g *fakeGateway) CreateIdentity(_ context.Context, in NewIdentity) (ExternalIdentity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byEmail[in.Email]; ok {
		return ExternalIdentity{}, ErrIdentityEmailExists
	}
	g.seq++
	uid := fmt.Sprintf("uid-%d", g.seq)
	id := &fakeIdentity{
		ExternalIdentity: ExternalIdentity{
			UID:           uid,
			Email:         in.Email,
			EmailVerified: in.EmailVerified,
			DisplayName:   in.DisplayName,
		},
		password: in.Password,
	}
	g.identities[uid] = id
	g.byEmail[in.Email] = uid
	return id.ExternalIdentity, nil
}

func (g *fakeGateway) GetIdentity(_ context.Context, uid string) (ExternalIdentity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.identities[uid]
	if !ok {
		return ExternalIdentity{}, ErrIdentityNotFound
	}
	return id.ExternalIdentity, nil
}

func (g *fakeGateway) GetIdentityByEmail(_ context.Context, email string) (ExternalIdentity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	uid, ok := g.byEmail[email]
	if !ok {
		return ExternalIdentity{}, ErrIdentityNotFound
	}
	return g.identities[uid].ExternalIdentity, nil
}

func (g *fakeGateway) UpdateIdentity(_ context.Context, uid string, update IdentityUpdate) (ExternalIdentity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return ExternalIdentity{}, g.updateErr
	}
	id, ok := g.identities[uid]
	if !ok {
		return ExternalIdentity{}, ErrIdentityNotFound
	}
	if update.Email != nil && *update.Email != id.Email {
		if owner, taken := g.byEmail[*update.Email]; taken && owner != uid {
			return ExternalIdentity{}, ErrIdentityEmailExists
		}
		delete(g.byEmail, id.Email)
		id.Email = *update.Email
		g.byEmail[id.Email] = uid
	}
	if update.EmailVerified != nil {
		id.EmailVerified = *update.EmailVerified
	}
	if update.DisplayName != nil {
		id.DisplayName = *update.DisplayName
	}
	return id.ExternalIdentity, nil
}

func (g *fakeGateway) DeleteIdentity(_ context.Context, uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	id, ok := g.identities[uid]
	if !ok {
		return ErrIdentityNotFound
	}
	delete(g.byEmail, id.Email)
	delete(g.identities, uid)
	return nil
}

func (g *fakeGateway) VerifyPassword(_ context.Context, email, password string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return "", g.verifyErr
	}
	uid, ok := g.byEmail[email]
	if !ok || g.identities[uid].password != password {
		return "", ErrCredentialRejected
	}
	return uid, nil
}

func (g *fakeGateway) MintCustomToken(_ context.Context, uid string) (string, error) {
	return "custom:" + uid, nil
}

func (g *fakeGateway) ExchangeCustomToken(_ context.Context, customToken string) (SessionTokens, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exchangeErr != nil {
		return SessionTokens{}, g.exchangeErr
	}
	uid, ok := strings.CutPrefix(customToken, "custom:")
	if !ok {
		return SessionTokens{}, ErrTokenRejected
	}
	return g.issueLocked(uid), nil
}

func (g *fakeGateway) ExchangeRefreshToken(_ context.Context, refreshToken string) (SessionTokens, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	uid, ok := g.refresh[refreshToken]
	if !ok {
		return SessionTokens{}, ErrTokenRejected
	}
	delete(g.refresh, refreshToken)
	return g.issueLocked(uid), nil
}

func (g *fakeGateway) issueLocked(uid string) SessionTokens {
	g.seq++
	rt := fmt.Sprintf("rt-%d", g.seq)
	g.refresh[rt] = uid
	return SessionTokens{
		IDToken:      "id:" + uid,
		RefreshToken: rt,
		UID:          uid,
		ExpiresIn:    time.Hour,
	}
}

func (g *fakeGateway) VerifyIDToken(_ context.Context, idToken string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.claims[idToken]; ok {
		return c, nil
	}
	uid, ok := strings.CutPrefix(idToken, "id:")
	if !ok {
		return nil, ErrTokenRejected
	}
	return map[string]any{"sub": uid, "email": g.identities[uid].Email}, nil
}

func (g *fakeGateway) RevokeRefreshTokens(_ context.Context, uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for rt, owner := range g.refresh {
		if owner == uid {
			delete(g.refresh, rt)
		}
	}
	g.revoked[uid]++
	return nil
}

func (g *fakeGateway) EmailVerificationLink(_ context.Context, email string) (string, error) {
	return "https://example.test/verify?email=" + email, nil
}

func (g *fakeGateway) PasswordResetLink(_ context.Context, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byEmail[email]; !ok {
		return "", ErrIdentityNotFound
	}
	return "https://example.test/reset?email=" + email, nil
}

// fakeProfiles is an in-memory ProfileStore with a unique email index.
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]Profile
	emails   map[string]string
	getErr   error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		profiles: map[string]Profile{},
		emails:   map[string]string{},
	}
}

func (s *fakeProfiles) CreateProfile(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UID]; ok {
		return ErrDuplicateAccount
	}
	if _, ok := s.emails[p.Email]; ok {
		return fmt.Errorf("%w: email", ErrDuplicateAccount)
	}
	s.profiles[p.UID] = p
	s.emails[p.Email] = p.UID
	return nil
}

func (s *fakeProfiles) GetProfile(_ context.Context, uid string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Profile{}, s.getErr
	}
	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	if p.PendingEmailChange != nil {
		cp := *p.PendingEmailChange
		p.PendingEmailChange = &cp
	}
	return p, nil
}

func (s *fakeProfiles) SetPendingEmailChange(_ context.Context, uid string, pending PendingEmailChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return ErrProfileNotFound
	}
	p.PendingEmailChange = &pending
	s.profiles[uid] = p
	return nil
}

func (s *fakeProfiles) ClearPendingEmailChange(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return ErrProfileNotFound
	}
	p.PendingEmailChange = nil
	s.profiles[uid] = p
	return nil
}

func (s *fakeProfiles) CommitEmailChange(_ context.Context, uid, newEmail string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	delete(s.emails, p.Email)
	p.Email = newEmail
	p.PendingEmailChange = nil
	s.profiles[uid] = p
	s.emails[newEmail] = uid
	return p, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *fakeNotifier) byKind(kind MessageKind) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, m := range n.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []ErrorReport
}

func (r *fakeReporter) Report(_ context.Context, report ErrorReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *fakeReporter) all() []ErrorReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorReport(nil), r.reports...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *Engine
	gateway  *fakeGateway
	profiles *fakeProfiles
	notifier *fakeNotifier
	reporter *fakeReporter
	clock    *testClock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Notifications.DropIfFull = false
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		gateway:  newFakeGateway(),
		profiles: newFakeProfiles(),
		notifier: &fakeNotifier{},
		reporter: &fakeReporter{},
		clock:    newTestClock(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithGateway(env.gateway).
		WithProfileStore(env.profiles).
		WithNotifier(env.notifier).
		WithErrorReporter(env.reporter).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email, password string) *RegisterResult {
	t.Helper()

	res, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: password,
		Profile:  ProfileFields{DisplayName: "Test User"},
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res
}

func hasReport(reports []ErrorReport, target error) bool {
	for _, r := range reports {
		if errors.Is(r.Err, target) {
			return true
		}
	}
	return false
}
