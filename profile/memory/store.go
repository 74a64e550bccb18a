// Package memory is an in-process goIdentity.ProfileStore for development
// servers and tests. Profiles are lost on restart.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Store keeps profiles in a map guarded by one mutex. Emails are unique
// case-insensitively, matching the postgres index.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]goIdentity.Profile
	emails   map[string]string
	now      func() time.Time
}

var _ goIdentity.ProfileStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		profiles: make(map[string]goIdentity.Profile),
		emails:   make(map[string]string),
		now:      time.Now,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateProfile implements goIdentity.ProfileStore.
func (s *Store) CreateProfile(_ context.Context, p goIdentity.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.UID]; ok {
		return fmt.Errorf("%w: uid %s", goIdentity.ErrDuplicateAccount, p.UID)
	}
	key := emailKey(p.Email)
	if _, ok := s.emails[key]; ok {
		return fmt.Errorf("%w: email", goIdentity.ErrDuplicateAccount)
	}

	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	p.PendingEmailChange = clonePending(p.PendingEmailChange)
	s.profiles[p.UID] = p
	s.emails[key] = p.UID
	return nil
}

// GetProfile implements goIdentity.ProfileStore.
func (s *Store) GetProfile(_ context.Context, uid string) (goIdentity.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[uid]
	if !ok {
		return goIdentity.Profile{}, goIdentity.ErrProfileNotFound
	}
	p.PendingEmailChange = clonePending(p.PendingEmailChange)
	return p, nil
}

// SetPendingEmailChange implements goIdentity.ProfileStore.
func (s *Store) SetPendingEmailChange(_ context.Context, uid string, pending goIdentity.PendingEmailChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok {
		return goIdentity.ErrProfileNotFound
	}
	p.PendingEmailChange = &pending
	p.UpdatedAt = s.now().UTC()
	s.profiles[uid] = p
	return nil
}

// ClearPendingEmailChange implements goIdentity.ProfileStore.
func (s *Store) ClearPendingEmailChange(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[uid]
	if !ok || p.PendingEmailChange == nil {
		return nil
	}
	p.PendingEmailChange = nil
	p.UpdatedAt = s.now().UTC()
	s.profiles[uid] = p
	return nil
}

// CommitEmailChange implements goIdentity.ProfileStore.
func (s *Store) CommitEmailChange(_ context.Context, uid, newEmail string) (goIdentity.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.moveEmailLocked(uid, newEmail)
	if err != nil {
		return goIdentity.Profile{}, err
	}
	p.PendingEmailChange = nil
	s.profiles[uid] = p
	return p, nil
}

// moveEmailLocked rebinds the email index. The caller stores the result.
func (s *Store) moveEmailLocked(uid, email string) (goIdentity.Profile, error) {
	p, ok := s.profiles[uid]
	if !ok {
		return goIdentity.Profile{}, goIdentity.ErrProfileNotFound
	}
	key := emailKey(email)
	if owner, ok := s.emails[key]; ok && owner != uid {
		return goIdentity.Profile{}, fmt.Errorf("%w: email", goIdentity.ErrDuplicateAccount)
	}
	delete(s.emails, emailKey(p.Email))
	s.emails[key] = uid
	p.Email = email
	p.UpdatedAt = s.now().UTC()
	p.PendingEmailChange = clonePending(p.PendingEmailChange)
	return p, nil
}

func clonePending(p *goIdentity.PendingEmailChange) *goIdentity.PendingEmailChange {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
