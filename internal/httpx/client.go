// Package httpx provides the shared HTTP client and the fixed request
// headers used for every call to the identity provider and the model
// platforms.
package httpx

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yumesha/kimi-cli/internal/version"
)

var userAgent = "kimi-cli/" + version.Version

// NewClient returns an HTTP client with TLS 1.2+ and a bounded overall
// timeout. Polling loops supply their own pacing on top of this.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &headerTransport{
			base: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// CommonHeaders returns the platform identification headers sent with every
// provider request. The device identifiers are constant placeholders, never
// real hardware fingerprints.
func CommonHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Msh-Platform", "kimi_cli")
	h.Set("X-Msh-Version", version.Version)
	h.Set("X-Msh-Device-Name", "anonymous")
	h.Set("X-Msh-Device-Model", "unknown")
	h.Set("X-Msh-Os-Version", "unknown")
	h.Set("X-Msh-Device-Id", uuid.Nil.String())
	return h
}

// headerTransport sets a minimal User-Agent so the Go version is not leaked.
type headerTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = (*headerTransport)(nil)

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}
