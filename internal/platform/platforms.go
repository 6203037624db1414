// Package platform holds the catalog of identity-bound model platforms and
// the model enumeration client.
package platform

import (
	"os"
	"strings"
)

// KimiCodeID is the managed platform the device flow authenticates against.
const KimiCodeID = "kimi-code"

// Platform describes one remote model platform.
type Platform struct {
	ID        string
	Name      string
	BaseURL   string
	SearchURL string
	FetchURL  string

	// AllowedPrefixes filters the model catalog; empty means all models.
	AllowedPrefixes []string
}

func kimiCodeBaseURL() string {
	if base := os.Getenv("KIMI_CODE_BASE_URL"); base != "" {
		return base
	}
	return "https://api.kimi.com/coding/v1"
}

// All returns the known platforms. Rebuilt per call so env overrides apply.
func All() []Platform {
	base := kimiCodeBaseURL()
	return []Platform{
		{
			ID:        KimiCodeID,
			Name:      "Kimi Code",
			BaseURL:   base,
			SearchURL: base + "/search",
			FetchURL:  base + "/fetch",
		},
		{
			ID:              "moonshot-cn",
			Name:            "Moonshot AI Open Platform (moonshot.cn)",
			BaseURL:         "https://api.moonshot.cn/v1",
			AllowedPrefixes: []string{"kimi-k"},
		},
		{
			ID:              "moonshot-ai",
			Name:            "Moonshot AI Open Platform (moonshot.ai)",
			BaseURL:         "https://api.moonshot.ai/v1",
			AllowedPrefixes: []string{"kimi-k"},
		},
	}
}

// ByID looks a platform up by identifier.
func ByID(id string) (Platform, bool) {
	for _, p := range All() {
		if p.ID == id {
			return p, true
		}
	}
	return Platform{}, false
}

const managedProviderPrefix = "managed:"

// ManagedProviderKey returns the configuration key for a platform's managed
// provider entry.
func ManagedProviderKey(platformID string) string {
	return managedProviderPrefix + platformID
}

// ParseManagedProviderKey returns the platform id for a managed provider
// key, or "" when the key is not managed.
func ParseManagedProviderKey(providerKey string) string {
	if !strings.HasPrefix(providerKey, managedProviderPrefix) {
		return ""
	}
	return strings.TrimPrefix(providerKey, managedProviderPrefix)
}

// IsManagedProviderKey reports whether the provider key is managed by this
// system rather than entered by the user.
func IsManagedProviderKey(providerKey string) bool {
	return strings.HasPrefix(providerKey, managedProviderPrefix)
}

// ManagedModelKey returns the configuration key for one of a platform's
// models.
func ManagedModelKey(platformID, modelID string) string {
	return platformID + "/" + modelID
}
