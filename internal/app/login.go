package app

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/yumesha/kimi-cli/internal/oauth"
	"github.com/yumesha/kimi-cli/internal/platform"
)

// LoginOptions tunes the login flow.
type LoginOptions struct {
	// OpenBrowser opens the verification URL locally, best effort.
	OpenBrowser bool
}

// Login runs the device-authorization login against the managed platform and
// narrates it as an ordered event sequence. The sequence is finite: it ends
// on the first terminal error event or on success.
//
// On a granted token the flow persists it, fetches the platform's model
// catalog with the fresh credential, applies the managed configuration and
// saves it. A catalog failure is reported as an error and the login counts
// as unsuccessful even though the token was already saved.
func Login(ctx context.Context, cfg *Config, store *oauth.Store, client *oauth.Client, catalog *platform.Client, opts LoginOptions) iter.Seq[oauth.Event] {
	return func(yield func(oauth.Event) bool) {
		stopped := false
		emit := func(e oauth.Event) bool {
			if stopped {
				return false
			}
			if !yield(e) {
				stopped = true
			}
			return !stopped
		}

		if !cfg.Writable() {
			emit(oauth.Event{
				Type:    oauth.EventError,
				Message: "Login requires the default config file; restart without --config.",
			})
			return
		}

		p, ok := platform.ByID(platform.KimiCodeID)
		if !ok {
			emit(oauth.Event{Type: oauth.EventError, Message: "Kimi Code platform is unavailable."})
			return
		}

		token, err := client.Authorize(ctx, oauth.AuthorizeOptions{OpenBrowser: opts.OpenBrowser}, emit)
		if err != nil {
			emit(oauth.Event{Type: oauth.EventError, Message: fmt.Sprintf("Login failed: %v", err)})
			return
		}

		ref := oauth.Ref{Storage: oauth.StorageFile, Key: oauth.CredentialKey}
		ref, err = store.Save(ref, token)
		if err != nil {
			emit(oauth.Event{Type: oauth.EventError, Message: fmt.Sprintf("Failed to save credentials: %v", err)})
			return
		}

		models, err := catalog.ListModels(ctx, p, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.AccessToken}))
		if err != nil {
			slog.Error("failed to get models", "error", err)
			emit(oauth.Event{Type: oauth.EventError, Message: fmt.Sprintf("Failed to get models: %v", err)})
			return
		}

		selected, thinking, ok := selectDefaultModel(models)
		if !ok {
			emit(oauth.Event{Type: oauth.EventError, Message: "No models available for the selected platform."})
			return
		}

		applyManagedPlatform(cfg, p, models, selected, thinking, ref)
		if err := cfg.Save(); err != nil {
			emit(oauth.Event{Type: oauth.EventError, Message: fmt.Sprintf("Failed to save configuration: %v", err)})
			return
		}
		emit(oauth.Event{Type: oauth.EventSuccess, Message: "Logged in successfully."})
	}
}

// Logout deletes the persisted tokens at both storage kinds, removes the
// managed configuration entries, and saves. No concurrency handling needed.
func Logout(cfg *Config, store *oauth.Store) iter.Seq[oauth.Event] {
	return func(yield func(oauth.Event) bool) {
		if !cfg.Writable() {
			yield(oauth.Event{
				Type:    oauth.EventError,
				Message: "Logout requires the default config file; restart without --config.",
			})
			return
		}

		store.Delete(oauth.Ref{Storage: oauth.StorageKeyring, Key: oauth.CredentialKey})
		store.Delete(oauth.Ref{Storage: oauth.StorageFile, Key: oauth.CredentialKey})

		removeManagedPlatform(cfg, platform.KimiCodeID)

		if err := cfg.Save(); err != nil {
			yield(oauth.Event{Type: oauth.EventError, Message: fmt.Sprintf("Failed to save configuration: %v", err)})
			return
		}
		yield(oauth.Event{Type: oauth.EventSuccess, Message: "Logged out successfully."})
	}
}
