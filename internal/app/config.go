package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/term"

	"github.com/yumesha/kimi-cli/internal/oauth"
	"github.com/yumesha/kimi-cli/internal/platform"
)

// Provider is one configured LLM provider. Managed entries (key prefix
// "managed:") are owned by the login flow; the rest are user-entered.
type Provider struct {
	Type    string     `json:"type" toml:"type" validate:"required"`
	BaseURL string     `json:"base_url" toml:"base_url" validate:"required,url"`
	APIKey  string     `json:"api_key" toml:"api_key"`
	OAuth   *oauth.Ref `json:"oauth,omitempty" toml:"oauth,omitempty"`
}

// Model maps a configuration model key onto a provider's model id.
type Model struct {
	Provider       string   `json:"provider" toml:"provider" validate:"required"`
	Model          string   `json:"model" toml:"model" validate:"required"`
	MaxContextSize int      `json:"max_context_size" toml:"max_context_size"`
	Capabilities   []string `json:"capabilities,omitempty" toml:"capabilities,omitempty"`
}

// Service is an auxiliary endpoint (search, fetch) sharing the managed
// credential.
type Service struct {
	BaseURL string     `json:"base_url" toml:"base_url" validate:"required,url"`
	APIKey  string     `json:"api_key" toml:"api_key"`
	OAuth   *oauth.Ref `json:"oauth,omitempty" toml:"oauth,omitempty"`
}

// Services groups the auxiliary service entries.
type Services struct {
	Search *Service `json:"search,omitempty" toml:"search,omitempty"`
	Fetch  *Service `json:"fetch,omitempty" toml:"fetch,omitempty"`
}

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the persistent application configuration.
type Config struct {
	// Runtime logging settings. Loaded with the rest of the configuration
	// (file, environment, flags) but never written back to disk.
	LogLevel  slog.Level `json:"log_level" toml:"-"`
	LogFormat string     `json:"log_format" toml:"-" validate:"omitempty,oneof=text json"`

	DefaultModel    string               `json:"default_model" toml:"default_model"`
	DefaultThinking bool                 `json:"default_thinking" toml:"default_thinking"`
	Providers       map[string]*Provider `json:"providers" toml:"providers" validate:"dive"`
	Models          map[string]*Model    `json:"models" toml:"models" validate:"dive"`
	Services        Services             `json:"services" toml:"services"`

	// path and fromDefault track where the config was loaded from; only
	// default-location configs may be rewritten by login and migration.
	path        string
	fromDefault bool
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, "kimi", "config.toml"), nil
}

// SetOrigin records where the configuration was loaded from.
func (c *Config) SetOrigin(path string, fromDefault bool) {
	c.path = path
	c.fromDefault = fromDefault
}

// ApplyDefaults fills unset fields. The log format follows the terminal:
// text on an interactive stderr, json otherwise.
func (c *Config) ApplyDefaults() {
	if c.LogFormat == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			c.LogFormat = LogFormatText
		} else {
			c.LogFormat = LogFormatJSON
		}
	}
	if c.Providers == nil {
		c.Providers = make(map[string]*Provider)
	}
	if c.Models == nil {
		c.Models = make(map[string]*Model)
	}
}

// Validate validates the configuration using struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Save writes the configuration back to its origin path as TOML.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("configuration has no origin path")
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Writable reports whether the configuration came from the default location.
func (c *Config) Writable() bool {
	return c.fromDefault
}

// CredentialRefs returns every oauth reference found in providers and
// services.
func (c *Config) CredentialRefs() []oauth.Ref {
	var refs []oauth.Ref
	for _, p := range c.Providers {
		if p != nil && p.OAuth != nil {
			refs = append(refs, *p.OAuth)
		}
	}
	for _, s := range []*Service{c.Services.Search, c.Services.Fetch} {
		if s != nil && s.OAuth != nil {
			refs = append(refs, *s.OAuth)
		}
	}
	return refs
}

// RewriteCredentialRefs applies fn to every stored oauth reference and
// reports whether any changed.
func (c *Config) RewriteCredentialRefs(fn func(oauth.Ref) oauth.Ref) bool {
	changed := false
	rewrite := func(ref *oauth.Ref) {
		if ref == nil {
			return
		}
		if next := fn(*ref); next != *ref {
			*ref = next
			changed = true
		}
	}
	for _, p := range c.Providers {
		if p != nil {
			rewrite(p.OAuth)
		}
	}
	for _, s := range []*Service{c.Services.Search, c.Services.Fetch} {
		if s != nil {
			rewrite(s.OAuth)
		}
	}
	return changed
}

// PrimaryRef returns the managed platform's credential reference: the
// managed provider's if present, otherwise a service entry bound to the
// fixed credential key.
func (c *Config) PrimaryRef() (oauth.Ref, bool) {
	if p := c.Providers[platform.ManagedProviderKey(platform.KimiCodeID)]; p != nil && p.OAuth != nil {
		return *p.OAuth, true
	}
	for _, s := range []*Service{c.Services.Search, c.Services.Fetch} {
		if s != nil && s.OAuth != nil && s.OAuth.Key == oauth.CredentialKey {
			return *s.OAuth, true
		}
	}
	return oauth.Ref{}, false
}

var _ oauth.Config = (*Config)(nil)
