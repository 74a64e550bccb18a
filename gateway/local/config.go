package local

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
)

// Config configures the local provider.
type Config struct {
	Prefix string

	Tokens   jwt.Config
	Password password.Config

	// RefreshTTL bounds the lifetime of a refresh session. Rotation does not
	// extend it.
	RefreshTTL time.Duration
	// ActionCodeTTL bounds verification and reset links.
	ActionCodeTTL time.Duration
	// ActionURL is the page that handles out-of-band links; the mode and
	// oobCode query parameters are appended.
	ActionURL string
}

// DefaultConfig returns a configuration signing with HS256 under key.
func DefaultConfig(key []byte) Config {
	return Config{
		Prefix: "idp:",
		Tokens: jwt.Config{
			IDTokenTTL:     time.Hour,
			CustomTokenTTL: 5 * time.Minute,
			SigningMethod:  jwt.MethodHS256,
			PrivateKey:     key,
			Issuer:         "identityd",
			Leeway:         30 * time.Second,
		},
		Password:      password.DefaultConfig(),
		RefreshTTL:    30 * 24 * time.Hour,
		ActionCodeTTL: 24 * time.Hour,
		ActionURL:     "http://localhost:8080/auth/action",
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Prefix) == "" {
		return errors.New("local gateway Prefix must be set")
	}
	if c.RefreshTTL <= 0 {
		return errors.New("local gateway RefreshTTL must be > 0")
	}
	if c.ActionCodeTTL <= 0 {
		return errors.New("local gateway ActionCodeTTL must be > 0")
	}
	u, err := url.Parse(c.ActionURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("local gateway ActionURL must be an absolute URL")
	}
	return nil
}
