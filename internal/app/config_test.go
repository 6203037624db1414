package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/yumesha/kimi-cli/internal/oauth"
	"github.com/yumesha/kimi-cli/internal/platform"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.SetOrigin(filepath.Join(t.TempDir(), "config.toml"), true)
	return cfg
}

func TestConfigSaveRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	ref := oauth.Ref{Storage: oauth.StorageFile, Key: oauth.CredentialKey}
	cfg.Providers["managed:kimi-code"] = &Provider{
		Type:    "kimi",
		BaseURL: "https://api.kimi.com/coding/v1",
		OAuth:   &ref,
	}
	cfg.Models["kimi-code/kimi-k2.5"] = &Model{
		Provider:       "managed:kimi-code",
		Model:          "kimi-k2.5",
		MaxContextSize: 262144,
		Capabilities:   []string{"thinking"},
	}
	cfg.DefaultModel = "kimi-code/kimi-k2.5"
	cfg.DefaultThinking = true

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(cfg.path)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Config
	if err := toml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if loaded.DefaultModel != cfg.DefaultModel || loaded.DefaultThinking != cfg.DefaultThinking {
		t.Errorf("round trip defaults = %q/%t", loaded.DefaultModel, loaded.DefaultThinking)
	}
	p := loaded.Providers["managed:kimi-code"]
	if p == nil || p.OAuth == nil || *p.OAuth != ref {
		t.Errorf("round trip provider = %+v", p)
	}
	if m := loaded.Models["kimi-code/kimi-k2.5"]; m == nil || m.MaxContextSize != 262144 {
		t.Errorf("round trip model = %+v", m)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers["bad"] = &Provider{Type: "openai", BaseURL: "not a url"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() error = nil, want error for invalid base_url")
	}

	cfg = testConfig(t)
	cfg.Providers["good"] = &Provider{Type: "openai", BaseURL: "https://api.example.com/v1", APIKey: "k"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestConfigCredentialRefs(t *testing.T) {
	cfg := testConfig(t)
	if refs := cfg.CredentialRefs(); len(refs) != 0 {
		t.Errorf("CredentialRefs() = %v, want none", refs)
	}

	providerRef := oauth.Ref{Storage: oauth.StorageKeyring, Key: oauth.CredentialKey}
	serviceRef := oauth.Ref{Storage: oauth.StorageFile, Key: oauth.CredentialKey}
	cfg.Providers["managed:kimi-code"] = &Provider{Type: "kimi", BaseURL: "https://x.example", OAuth: &providerRef}
	cfg.Services.Search = &Service{BaseURL: "https://x.example/search", OAuth: &serviceRef}

	if refs := cfg.CredentialRefs(); len(refs) != 2 {
		t.Errorf("CredentialRefs() = %v, want 2 refs", refs)
	}

	changed := cfg.RewriteCredentialRefs(func(ref oauth.Ref) oauth.Ref {
		ref.Storage = oauth.StorageFile
		return ref
	})
	if !changed {
		t.Error("RewriteCredentialRefs() = false, want true")
	}
	for _, ref := range cfg.CredentialRefs() {
		if ref.Storage != oauth.StorageFile {
			t.Errorf("ref storage = %q after rewrite", ref.Storage)
		}
	}
	if cfg.RewriteCredentialRefs(func(ref oauth.Ref) oauth.Ref { return ref }) {
		t.Error("RewriteCredentialRefs() = true for identity rewrite")
	}
}

func TestConfigPrimaryRef(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := cfg.PrimaryRef(); ok {
		t.Error("PrimaryRef() ok = true for empty config")
	}

	serviceRef := oauth.Ref{Storage: oauth.StorageFile, Key: oauth.CredentialKey}
	cfg.Services.Fetch = &Service{BaseURL: "https://x.example/fetch", OAuth: &serviceRef}
	if ref, ok := cfg.PrimaryRef(); !ok || ref != serviceRef {
		t.Errorf("PrimaryRef() = %+v/%t, want service ref", ref, ok)
	}

	providerRef := oauth.Ref{Storage: oauth.StorageKeyring, Key: oauth.CredentialKey}
	cfg.Providers[platform.ManagedProviderKey(platform.KimiCodeID)] = &Provider{
		Type: "kimi", BaseURL: "https://x.example", OAuth: &providerRef,
	}
	if ref, ok := cfg.PrimaryRef(); !ok || ref != providerRef {
		t.Errorf("PrimaryRef() = %+v/%t, want managed provider ref", ref, ok)
	}
}

func TestConfigWritable(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	cfg.SetOrigin(filepath.Join(t.TempDir(), "custom.toml"), false)
	if cfg.Writable() {
		t.Error("Writable() = true for explicit config path")
	}

	cfg.SetOrigin("", false)
	if err := cfg.Save(); err == nil {
		t.Error("Save() error = nil for config without origin")
	}
}
