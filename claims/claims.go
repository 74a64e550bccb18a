// Package claims normalizes the claim sets produced by identity providers
// into a single [Identity] shape.
//
// Providers disagree on where the subject lives: Firebase ID tokens carry
// both "sub" and "user_id", Identity Toolkit responses use "localId", and
// locally issued tokens use "uid". [Normalize] accepts any of these, requires
// that all present keys agree, and rejects everything else.
package claims

import (
	"errors"
	"strings"
)

// ErrUnrecognized is returned when no subject can be derived from a claim
// set, or when subject keys disagree.
var ErrUnrecognized = errors.New("claims: unrecognized shape")

// subjectKeys lists the accepted subject keys in precedence order.
var subjectKeys = []string{"uid", "user_id", "sub", "localId"}

// Identity is the normalized caller identity.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Claims        map[string]any
}

// Normalize derives an [Identity] from raw.
func Normalize(raw map[string]any) (Identity, error) {
	if len(raw) == 0 {
		return Identity{}, ErrUnrecognized
	}

	var uid string
	for _, key := range subjectKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Identity{}, ErrUnrecognized
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if uid != "" && uid != s {
			return Identity{}, ErrUnrecognized
		}
		uid = s
	}
	if uid == "" || len(uid) > 128 {
		return Identity{}, ErrUnrecognized
	}

	id := Identity{
		UID:    uid,
		Claims: raw,
	}
	if email, ok := raw["email"].(string); ok {
		id.Email = email
	}
	switch v := raw["email_verified"].(type) {
	case bool:
		id.EmailVerified = v
	case string:
		id.EmailVerified = v == "true"
	}

	return id, nil
}

// String returns the claim at key when it is a string.
func (i Identity) String(key string) (string, bool) {
	v, ok := i.Claims[key].(string)
	return v, ok
}
