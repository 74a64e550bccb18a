// Package csrf implements double-submit tokens bound to a per-client secret.
//
// The secret lives in an http-only cookie. A token is a random salt plus an
// HMAC of that salt under the secret, so a fresh token can be minted on
// every safe request and any of them verifies against the same secret.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const (
	secretSize = 18
	saltSize   = 8
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("csrf: missing token")
	// ErrMissingSecret is returned when a request carries no secret cookie.
	ErrMissingSecret = errors.New("csrf: missing secret")
	// ErrInvalidToken is returned when the token does not match the secret.
	ErrInvalidToken = errors.New("csrf: invalid token")
)

var encoding = base64.RawURLEncoding

// NewSecret returns a fresh random secret.
func NewSecret() (string, error) {
	buf := make([]byte, secretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return encoding.EncodeToString(buf), nil
}

// NewToken mints a token for secret.
func NewToken(secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	buf := make([]byte, saltSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	salt := encoding.EncodeToString(buf)
	return salt + "." + sign(secret, salt), nil
}

// Verify checks token against secret.
func Verify(secret, token string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if token == "" {
		return ErrMissingToken
	}
	salt, mac, ok := strings.Cut(token, ".")
	if !ok || salt == "" || mac == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(mac), []byte(sign(secret, salt))) {
		return ErrInvalidToken
	}
	return nil
}

func sign(secret, salt string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(salt))
	return encoding.EncodeToString(m.Sum(nil))
}
