package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/yumesha/kimi-cli/internal/httpx"
)

const (
	// ClientID is the public device-flow client identifier for Kimi Code.
	ClientID = "17e5f671-d194-4dfb-9706-5516cb48c098"

	// DefaultHost is the identity provider's base URL.
	DefaultHost = "https://auth.kimi.com"

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	maxResponseBytes = 1 << 20
)

// Host returns the identity provider host, honoring the environment
// overrides used for staging setups.
func Host() string {
	if h := os.Getenv("KIMI_CODE_OAUTH_HOST"); h != "" {
		return h
	}
	if h := os.Getenv("KIMI_OAUTH_HOST"); h != "" {
		return h
	}
	return DefaultHost
}

// DeviceAuthorization is the ephemeral state handed out by the
// device-authorization endpoint, valid until consumed by a successful poll
// or its own expiry.
type DeviceAuthorization struct {
	UserCode                string `json:"user_code"`
	DeviceCode              string `json:"device_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHost overrides the identity provider host.
func WithHost(host string) ClientOption {
	return func(c *Client) { c.host = host }
}

// WithHTTPClient overrides the HTTP client used for provider requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// Client speaks the provider's OAuth endpoints. It is stateless and safe for
// concurrent use.
type Client struct {
	host string
	http *http.Client
}

// NewClient creates a provider client against Host().
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		host: Host(),
		http: httpx.NewClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestDeviceAuthorization asks the provider for a fresh device code.
func (c *Client) RequestDeviceAuthorization(ctx context.Context) (*DeviceAuthorization, error) {
	form := url.Values{}
	form.Set("client_id", ClientID)

	status, body, err := c.postForm(ctx, "/api/oauth/device_authorization", form)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("device authorization failed: status=%d body=%s", status, strings.TrimSpace(string(body)))
	}

	var auth DeviceAuthorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("unexpected device authorization response: %w", err)
	}
	if auth.DeviceCode == "" || auth.VerificationURIComplete == "" {
		return nil, fmt.Errorf("device authorization response missing device_code or verification URL")
	}
	if auth.Interval == 0 {
		auth.Interval = 5
	}
	return &auth, nil
}

// PollDeviceToken performs one poll of the token endpoint for the device
// grant. Outcomes:
//   - a granted token
//   - *PendingError: the user has not approved yet, keep polling
//   - ErrDeviceExpired: the device code lapsed, restart the flow
//   - any other error is terminal for the flow
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", ClientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", deviceGrantType)

	status, body, err := c.postForm(ctx, "/api/oauth/token", form)
	if err != nil {
		return nil, fmt.Errorf("token polling request failed: %w", err)
	}
	if status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("token polling server error: status=%d", status)
	}

	var payload struct {
		tokenResponse
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected token polling response: %w", err)
	}

	if status == http.StatusOK && payload.AccessToken != "" {
		return payload.token(time.Now()), nil
	}

	code := payload.Error
	if code == "" {
		code = "unknown_error"
	}
	if code == "expired_token" {
		return nil, ErrDeviceExpired
	}
	return nil, &PendingError{Code: code, Description: payload.ErrorDescription}
}

// Refresh exchanges a refresh token for a new Token. A 401/403 response
// wraps ErrUnauthorized; any other non-200 is a generic failure.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	status, body, err := c.postForm(ctx, "/api/oauth/token", form)
	if err != nil {
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, errorDescription(body, "token refresh unauthorized"))
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed: %s", errorDescription(body, fmt.Sprintf("status=%d", status)))
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected token refresh response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("token refresh response missing access_token")
	}
	return payload.token(time.Now()), nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	endpoint := strings.TrimSuffix(c.host, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, vs := range httpx.CommonHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorDescription(body []byte, fallback string) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorDescription != "" {
			return payload.ErrorDescription
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return fallback
}
