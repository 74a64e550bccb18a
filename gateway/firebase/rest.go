package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const maxRESTResponseBytes = 1 << 20

// Identity Toolkit error messages that mean the presented credential is
// wrong rather than the service failing.
var credentialErrors = map[string]struct{}{
	"EMAIL_NOT_FOUND":           {},
	"INVALID_PASSWORD":          {},
	"INVALID_LOGIN_CREDENTIALS": {},
	"INVALID_EMAIL":             {},
	"USER_DISABLED":             {},
	"MISSING_PASSWORD":          {},
}

var tokenErrors = map[string]struct{}{
	"TOKEN_EXPIRED":           {},
	"INVALID_REFRESH_TOKEN":   {},
	"INVALID_GRANT_TYPE":      {},
	"MISSING_REFRESH_TOKEN":   {},
	"USER_DISABLED":           {},
	"USER_NOT_FOUND":          {},
	"INVALID_CUSTOM_TOKEN":    {},
	"CREDENTIAL_MISMATCH":     {},
	"INVALID_ID_TOKEN":        {},
	"INVALID_GRANT":           {},
	"PROJECT_NUMBER_MISMATCH": {},
}

// apiKeyTransport adds the project's web API key to every request.
type apiKeyTransport struct {
	base http.RoundTripper
	key  string
}

func (t apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("key", t.key)
	r.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(r)
}

func keyedClient(base *http.Client, key string) *http.Client {
	c := *base
	rt := c.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c.Transport = apiKeyTransport{base: rt, key: key}
	return &c
}

// restClient covers the sign-in endpoints: Identity Toolkit through the
// generated client, and Secure Token's /token grant, which has none.
type restClient struct {
	http           *http.Client
	relyingParty   *identitytoolkit.RelyingpartyService
	secureTokenURL string
}

func newRESTClient(ctx context.Context, cfg Config) (*restClient, error) {
	client := keyedClient(cfg.HTTPClient, cfg.APIKey)
	svc, err := identitytoolkit.NewService(ctx,
		option.WithHTTPClient(client),
		option.WithEndpoint(cfg.IdentityToolkitURL),
	)
	if err != nil {
		return nil, fmt.Errorf("firebase: init identity toolkit: %w", err)
	}
	return &restClient{
		http:           client,
		relyingParty:   svc.Relyingparty,
		secureTokenURL: cfg.SecureTokenURL,
	}, nil
}

// signInWithPassword returns the uid owning email and password.
func (c *restClient) signInWithPassword(ctx context.Context, email, password string) (string, error) {
	resp, err := c.relyingParty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return "", toolkitError("verify password", err, true)
	}
	return resp.LocalId, nil
}

func (c *restClient) signInWithCustomToken(ctx context.Context, token string) (idToken, refreshToken string, expiresIn time.Duration, err error) {
	resp, err := c.relyingParty.VerifyCustomToken(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyCustomTokenRequest{
		Token:             token,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return "", "", 0, toolkitError("verify custom token", err, false)
	}
	return resp.IdToken, resp.RefreshToken, time.Duration(resp.ExpiresIn) * time.Second, nil
}

// toolkitError maps a 4xx reason onto the gateway sentinels. Server
// errors and transport failures stay unclassified.
func toolkitError(op string, err error, credential bool) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code >= http.StatusInternalServerError {
		return fmt.Errorf("firebase: %s: %w", op, err)
	}
	reason := errorReason(apiErr.Message)
	if _, ok := credentialErrors[reason]; ok && credential {
		return fmt.Errorf("%w: %s", goIdentity.ErrCredentialRejected, reason)
	}
	if _, ok := tokenErrors[reason]; ok {
		return fmt.Errorf("%w: %s", goIdentity.ErrTokenRejected, reason)
	}
	return fmt.Errorf("firebase: %s: %s", op, reason)
}

// errorReason strips the detail the services append after " : ".
func errorReason(message string) string {
	msg, _, _ := strings.Cut(strings.TrimSpace(message), " ")
	return msg
}

// restError is the Secure Token error envelope.
type restError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *restClient) refresh(ctx context.Context, refreshToken string) (goIdentity.SessionTokens, error) {
	if refreshToken == "" {
		return goIdentity.SessionTokens{}, fmt.Errorf("%w: empty refresh token", goIdentity.ErrTokenRejected)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.secureTokenURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return goIdentity.SessionTokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	reason, err := c.do(req, &out)
	if err != nil {
		return goIdentity.SessionTokens{}, fmt.Errorf("firebase: refresh: %w", err)
	}
	if reason != "" {
		if _, ok := tokenErrors[reason]; ok {
			return goIdentity.SessionTokens{}, fmt.Errorf("%w: %s", goIdentity.ErrTokenRejected, reason)
		}
		return goIdentity.SessionTokens{}, fmt.Errorf("firebase: refresh: %s", reason)
	}
	return goIdentity.SessionTokens{
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		UID:          out.UserID,
		ExpiresIn:    parseExpiresIn(out.ExpiresIn),
	}, nil
}

// do sends req. A service-level error returns its reason with a nil error;
// transport and decoding failures return an error.
func (c *restClient) do(req *http.Request, out any) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponseBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e restError
		if json.Unmarshal(data, &e) != nil || e.Error.Message == "" {
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, errorReason(e.Error.Message))
		}
		return errorReason(e.Error.Message), nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return "", nil
}

func parseExpiresIn(s string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
