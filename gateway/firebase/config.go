package firebase

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultIdentityToolkitURL = "https://www.googleapis.com/identitytoolkit/v3/relyingparty/"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

// Config configures the Firebase gateway.
type Config struct {
	ProjectID string
	// CredentialsFile is a service account JSON file. Empty uses
	// Application Default Credentials.
	CredentialsFile string
	// APIKey is the project's web API key used by the REST endpoints.
	APIKey string

	// IdentityToolkitURL is the relyingparty base of Identity Toolkit v3.
	IdentityToolkitURL string
	SecureTokenURL     string
	HTTPClient         *http.Client
}

func (c *Config) applyDefaults() {
	if c.IdentityToolkitURL == "" {
		c.IdentityToolkitURL = DefaultIdentityToolkitURL
	}
	if c.SecureTokenURL == "" {
		c.SecureTokenURL = DefaultSecureTokenURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	c.IdentityToolkitURL = strings.TrimRight(c.IdentityToolkitURL, "/") + "/"
	c.SecureTokenURL = strings.TrimRight(c.SecureTokenURL, "/")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("firebase gateway APIKey must be set")
	}
	for _, raw := range []string{c.IdentityToolkitURL, c.SecureTokenURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("firebase gateway endpoint URLs must be absolute")
		}
	}
	return nil
}
