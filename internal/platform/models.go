package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/oauth2"

	"github.com/yumesha/kimi-cli/internal/httpx"
)

// Model capability names shared with the application config.
const (
	CapThinking       = "thinking"
	CapAlwaysThinking = "always_thinking"
	CapImageIn        = "image_in"
	CapVideoIn        = "video_in"
)

// ModelInfo is one entry of a platform's model catalog.
type ModelInfo struct {
	ID                string `json:"id"`
	ContextLength     int    `json:"context_length"`
	SupportsReasoning bool   `json:"supports_reasoning"`
	SupportsImageIn   bool   `json:"supports_image_in"`
	SupportsVideoIn   bool   `json:"supports_video_in"`
}

// Capabilities derives capability names from the catalog entry. Models with
// "thinking" in their id are always-thinking.
func (m ModelInfo) Capabilities() []string {
	caps := make(map[string]bool)
	if m.SupportsReasoning {
		caps[CapThinking] = true
	}
	lower := strings.ToLower(m.ID)
	if strings.Contains(lower, "thinking") {
		caps[CapThinking] = true
		caps[CapAlwaysThinking] = true
	}
	if m.SupportsImageIn {
		caps[CapImageIn] = true
	}
	if m.SupportsVideoIn {
		caps[CapVideoIn] = true
	}
	if strings.Contains(lower, "kimi-k2.5") {
		caps[CapThinking] = true
		caps[CapImageIn] = true
		caps[CapVideoIn] = true
	}
	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Client fetches model catalogs.
type Client struct {
	base *http.Client
}

// NewClient creates a catalog client on the shared HTTP stack.
func NewClient() *Client {
	return &Client{base: httpx.NewClient()}
}

// ListModels enumerates the platform's models, authenticating with ts and
// applying the platform's model-prefix filter. Transport and parse failures
// are returned as errors; callers decide whether they are fatal.
func (c *Client) ListModels(ctx context.Context, p Platform, ts oauth2.TokenSource) ([]ModelInfo, error) {
	httpClient := &http.Client{
		Timeout: c.base.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   c.base.Transport,
		},
	}

	endpoint := strings.TrimSuffix(p.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range httpx.CommonHeaders() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models for %s: %w", p.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models request for %s failed: status=%d body=%s", p.ID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected models response for %s: %w", p.ID, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("unexpected models response for %s: missing data", p.ID)
	}

	models := make([]ModelInfo, 0, len(payload.Data))
	for _, m := range payload.Data {
		if m.ID == "" {
			continue
		}
		if len(p.AllowedPrefixes) > 0 && !hasAnyPrefix(m.ID, p.AllowedPrefixes) {
			continue
		}
		models = append(models, m)
	}
	return models, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
