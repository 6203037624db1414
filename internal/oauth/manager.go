package oauth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// refreshInterval is the background loop period.
	refreshInterval = 60 * time.Second

	// refreshThreshold is how long before expiry a token is refreshed.
	// Refreshing this early tolerates clock skew and request latency
	// without a scheduled-exactly-at-expiry timer.
	refreshThreshold = 300 * time.Second
)

// Config is the slice of application configuration the Manager needs. The
// application config type implements it; the Manager never sees the rest.
type Config interface {
	// CredentialRefs returns every configured credential reference.
	CredentialRefs() []Ref

	// RewriteCredentialRefs applies fn to every configured reference and
	// reports whether any changed.
	RewriteCredentialRefs(fn func(Ref) Ref) bool

	// PrimaryRef returns the managed platform's reference, if configured.
	PrimaryRef() (Ref, bool)

	// Writable reports whether the configuration came from its default
	// location and may be persisted.
	Writable() bool

	// Save persists the configuration.
	Save() error
}

// TokenSink receives access-token updates for a live consumer bound to a
// credential; an empty token means the credential was revoked and the
// consumer should surface an authentication error on next use.
type TokenSink interface {
	SetAccessToken(token string)
}

// Manager owns the in-memory access-token cache and the refresh coordinator
// for one session. The on-disk Store stays authoritative: the cache is a
// shortcut that is re-primed from the store on every miss, load, save and
// refresh.
type Manager struct {
	cfg    Config
	store  *Store
	client *Client

	mu     sync.RWMutex // guards cache and sinks
	cache  map[string]string
	sinks  map[string]TokenSink

	// refreshMu serializes refresh attempts across all references. Refresh
	// calls are infrequent relative to their cost, so one lock suffices;
	// the store is always re-read after acquiring it.
	refreshMu sync.Mutex
}

// NewManager builds the session's credential manager: migrates every
// configured legacy reference to file storage (each distinct key at most
// once), persists the configuration if that changed anything and the config
// is writable, and primes the cache from the store.
func NewManager(cfg Config, store *Store, client *Client) *Manager {
	m := &Manager{
		cfg:    cfg,
		store:  store,
		client: client,
		cache:  make(map[string]string),
		sinks:  make(map[string]TokenSink),
	}
	m.migrateStorage()
	m.primeCache()
	return m
}

func (m *Manager) migrateStorage() {
	migrated := make(map[string]bool)
	changed := m.cfg.RewriteCredentialRefs(func(ref Ref) Ref {
		if ref.Storage != StorageKeyring {
			return ref
		}
		if !migrated[ref.Key] {
			m.store.Load(ref) // migrates as a side effect
			migrated[ref.Key] = true
		}
		return Ref{Storage: StorageFile, Key: ref.Key}
	})
	if changed && m.cfg.Writable() {
		if err := m.cfg.Save(); err != nil {
			slog.Warn("failed to persist migrated credential references", "error", err)
		}
	}
}

func (m *Manager) primeCache() {
	for _, ref := range m.cfg.CredentialRefs() {
		if tok, _, ok := m.store.Load(ref); ok {
			m.cacheToken(ref.Key, tok.AccessToken)
		}
	}
}

// cacheToken stores the access token for key; an empty token clears the
// entry instead.
func (m *Manager) cacheToken(key, accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accessToken == "" {
		delete(m.cache, key)
		return
	}
	m.cache[key] = accessToken
}

func (m *Manager) cachedToken(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.cache[key]
	return tok, ok
}

// RegisterSink binds sink as the active consumer for ref's credential,
// replacing any previous one. The returned function unregisters it (only if
// still the active sink).
func (m *Manager) RegisterSink(ref Ref, sink TokenSink) (unregister func()) {
	m.mu.Lock()
	m.sinks[ref.Key] = sink
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sinks[ref.Key] == sink {
			delete(m.sinks, ref.Key)
		}
	}
}

func (m *Manager) applyToSink(key, accessToken string) {
	m.mu.RLock()
	sink := m.sinks[key]
	m.mu.RUnlock()
	if sink != nil {
		sink.SetAccessToken(accessToken)
	}
}

// ResolveAPIKey is the single authentication resolution path for outbound
// requests: the ref's cached access token if present, the persisted token on
// a cache miss, and otherwise the caller-supplied static key, unmodified.
// It never fails; worst case the static key lets the downstream request fail
// visibly.
func (m *Manager) ResolveAPIKey(staticKey string, ref *Ref) string {
	if ref == nil {
		return staticKey
	}
	if tok, ok := m.cachedToken(ref.Key); ok {
		return tok
	}
	if persisted, _, ok := m.store.Load(*ref); ok && persisted.AccessToken != "" {
		m.cacheToken(ref.Key, persisted.AccessToken)
		return persisted.AccessToken
	}
	return staticKey
}

// EnsureFresh refreshes the primary managed credential if it is close to
// expiry. Idempotent, safe to call concurrently, and never propagates
// failures: transient errors are logged and retried on the next call.
func (m *Manager) EnsureFresh(ctx context.Context) {
	ref, ok := m.cfg.PrimaryRef()
	if !ok {
		return
	}
	m.ensureFresh(ctx, ref)
}

func (m *Manager) ensureFresh(ctx context.Context, ref Ref) {
	token, _, ok := m.store.Load(ref)
	if !ok {
		return
	}
	// Apply immediately: a stale-but-valid token is better than none while
	// the refresh proceeds.
	m.cacheToken(ref.Key, token.AccessToken)
	m.applyToSink(ref.Key, token.AccessToken)
	m.refresh(ctx, ref, token)
}

// refresh implements the coordinator: re-read, lock, re-read, refresh,
// reconcile. The persisted token is preferred at every step so a token
// rotated by another session is adopted instead of clobbered.
func (m *Manager) refresh(ctx context.Context, ref Ref, token *Token) {
	if persisted, _, ok := m.store.Load(ref); ok {
		m.cacheToken(ref.Key, persisted.AccessToken)
		token = persisted
	}
	if token.RefreshToken == "" {
		return
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another waiter may have refreshed while this caller held no lock.
	if persisted, _, ok := m.store.Load(ref); ok {
		m.cacheToken(ref.Key, persisted.AccessToken)
		token = persisted
	}
	if token.FreshAt(time.Now(), refreshThreshold) {
		return
	}
	refreshTokenValue := token.RefreshToken
	if refreshTokenValue == "" {
		return
	}

	refreshed, err := m.client.Refresh(ctx, refreshTokenValue)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			m.handleRejection(ref, refreshTokenValue, err)
			return
		}
		slog.Warn("failed to refresh token", "key", ref.Key, "error", err)
		return
	}

	if _, err := m.store.Save(ref, refreshed); err != nil {
		slog.Error("failed to persist refreshed token", "key", ref.Key, "error", err)
	}
	m.cacheToken(ref.Key, refreshed.AccessToken)
	m.applyToSink(ref.Key, refreshed.AccessToken)
}

// handleRejection reconciles an explicit provider rejection. If the store
// now holds a different refresh token, another session already rotated the
// credential and its result is adopted; nothing is deleted. Otherwise the
// credential is treated as permanently revoked.
func (m *Manager) handleRejection(ref Ref, rejectedRefreshToken string, cause error) {
	if latest, _, ok := m.store.Load(ref); ok && latest.RefreshToken != rejectedRefreshToken {
		m.cacheToken(ref.Key, latest.AccessToken)
		m.applyToSink(ref.Key, latest.AccessToken)
		return
	}
	slog.Warn("credentials rejected, deleting stored token", "key", ref.Key, "error", cause)
	m.cacheToken(ref.Key, "")
	m.store.Delete(ref)
	m.applyToSink(ref.Key, "")
}

// WithBackgroundRefresh runs fn with the credential kept fresh: one
// immediate EnsureFresh on entry, then a periodic task for the duration of
// fn. The task is stopped and fully joined before this returns, on any exit
// path, so no background activity outlives the scope.
func (m *Manager) WithBackgroundRefresh(ctx context.Context, fn func(ctx context.Context) error) error {
	m.EnsureFresh(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return nil
			case <-ticker.C:
				m.EnsureFresh(loopCtx)
			}
		}
	})
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	return fn(ctx)
}
