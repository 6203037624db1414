package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/oauth2"

	"github.com/yumesha/kimi-cli/internal/oauth"
	"github.com/yumesha/kimi-cli/internal/platform"
)

// selectDefaultModel picks the default model (first catalog entry) and
// whether thinking should be on by default.
func selectDefaultModel(models []platform.ModelInfo) (platform.ModelInfo, bool, bool) {
	if len(models) == 0 {
		return platform.ModelInfo{}, false, false
	}
	selected := models[0]
	caps := selected.Capabilities()
	thinking := slices.Contains(caps, platform.CapThinking) || slices.Contains(caps, platform.CapAlwaysThinking)
	return selected, thinking, true
}

// applyManagedPlatform installs the managed provider, replaces its model
// entries with the fresh catalog, sets the defaults, and binds the
// search/fetch services to the same credential reference.
func applyManagedPlatform(cfg *Config, p platform.Platform, models []platform.ModelInfo, selected platform.ModelInfo, thinking bool, ref oauth.Ref) {
	providerKey := platform.ManagedProviderKey(p.ID)
	cfg.Providers[providerKey] = &Provider{
		Type:    "kimi",
		BaseURL: p.BaseURL,
		OAuth:   &ref,
	}

	for key, model := range cfg.Models {
		if model.Provider == providerKey {
			delete(cfg.Models, key)
		}
	}
	for _, info := range models {
		cfg.Models[platform.ManagedModelKey(p.ID, info.ID)] = &Model{
			Provider:       providerKey,
			Model:          info.ID,
			MaxContextSize: info.ContextLength,
			Capabilities:   info.Capabilities(),
		}
	}

	cfg.DefaultModel = platform.ManagedModelKey(p.ID, selected.ID)
	cfg.DefaultThinking = thinking

	if p.SearchURL != "" {
		cfg.Services.Search = &Service{BaseURL: p.SearchURL, OAuth: &ref}
	}
	if p.FetchURL != "" {
		cfg.Services.Fetch = &Service{BaseURL: p.FetchURL, OAuth: &ref}
	}
}

// removeManagedPlatform strips the managed provider, its models and the
// service bindings; the inverse of applyManagedPlatform.
func removeManagedPlatform(cfg *Config, platformID string) {
	providerKey := platform.ManagedProviderKey(platformID)
	delete(cfg.Providers, providerKey)

	removedDefault := false
	for key, model := range cfg.Models {
		if model.Provider != providerKey {
			continue
		}
		delete(cfg.Models, key)
		if cfg.DefaultModel == key {
			removedDefault = true
		}
	}
	if removedDefault {
		cfg.DefaultModel = ""
	}

	cfg.Services.Search = nil
	cfg.Services.Fetch = nil
}

// reconcileModels updates the managed provider's model entries to match the
// fresh catalog: add, update, remove, and repair a default model left
// dangling. Reports whether anything changed.
func reconcileModels(cfg *Config, providerKey, platformID string, models []platform.ModelInfo) bool {
	changed := false
	keys := make(map[string]bool, len(models))
	var orderedKeys []string

	for _, info := range models {
		key := platform.ManagedModelKey(platformID, info.ID)
		keys[key] = true
		orderedKeys = append(orderedKeys, key)

		caps := info.Capabilities()
		existing := cfg.Models[key]
		if existing == nil {
			cfg.Models[key] = &Model{
				Provider:       providerKey,
				Model:          info.ID,
				MaxContextSize: info.ContextLength,
				Capabilities:   caps,
			}
			changed = true
			continue
		}
		if existing.Provider != providerKey {
			existing.Provider = providerKey
			changed = true
		}
		if existing.Model != info.ID {
			existing.Model = info.ID
			changed = true
		}
		if existing.MaxContextSize != info.ContextLength {
			existing.MaxContextSize = info.ContextLength
			changed = true
		}
		if !slices.Equal(existing.Capabilities, caps) {
			existing.Capabilities = caps
			changed = true
		}
	}

	removedDefault := false
	for key, model := range cfg.Models {
		if model.Provider != providerKey || keys[key] {
			continue
		}
		delete(cfg.Models, key)
		if cfg.DefaultModel == key {
			removedDefault = true
		}
		changed = true
	}

	if removedDefault {
		if len(orderedKeys) > 0 {
			cfg.DefaultModel = orderedKeys[0]
		} else {
			cfg.DefaultModel = firstModelKey(cfg)
		}
		changed = true
	}
	if cfg.DefaultModel != "" && cfg.Models[cfg.DefaultModel] == nil {
		cfg.DefaultModel = firstModelKey(cfg)
		changed = true
	}

	return changed
}

func firstModelKey(cfg *Config) string {
	for key := range cfg.Models {
		return key
	}
	return ""
}

// RefreshManagedModels re-enumerates the catalog for every managed provider
// and reconciles the configured model entries, saving the config when
// anything changed. Individual platform failures are logged and skipped.
func RefreshManagedModels(ctx context.Context, cfg *Config, catalog *platform.Client, manager *oauth.Manager) (bool, error) {
	if !cfg.Writable() {
		return false, nil
	}

	changed := false
	for providerKey, provider := range cfg.Providers {
		platformID := platform.ParseManagedProviderKey(providerKey)
		if platformID == "" || provider == nil {
			continue
		}
		p, ok := platform.ByID(platformID)
		if !ok {
			slog.Warn("managed platform not found", "platform", platformID)
			continue
		}

		var ts oauth2.TokenSource
		switch {
		case provider.APIKey != "":
			ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: provider.APIKey})
		case provider.OAuth != nil:
			ts = manager.TokenSource(*provider.OAuth)
		default:
			slog.Warn("missing credentials for managed provider", "provider", providerKey)
			continue
		}

		models, err := catalog.ListModels(ctx, p, ts)
		if err != nil {
			slog.Error("failed to refresh models", "platform", platformID, "error", err)
			continue
		}
		if reconcileModels(cfg, providerKey, platformID, models) {
			changed = true
		}
	}

	if changed {
		if err := cfg.Save(); err != nil {
			return true, fmt.Errorf("saving refreshed models: %w", err)
		}
	}
	return changed, nil
}
