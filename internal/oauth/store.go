package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the legacy credential-store service name tokens were
// stored under before the file store existed.
const KeyringService = "kimi-code"

// Store persists tokens. The file kind is authoritative; the keyring kind
// exists only so tokens written by older releases can be migrated out of it.
//
// Read failures of any sort degrade to "absent" — a corrupt or unreadable
// entry never aborts the caller.
type Store struct {
	dir     string
	service string
}

// DefaultStoreDir returns the credentials directory under the user
// configuration root.
func DefaultStoreDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, "kimi", "credentials"), nil
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir, service: KeyringService}
}

// Load reads the token for ref. The file store is consulted first regardless
// of the ref's storage kind; a legacy ref whose token is only in the keyring
// is migrated: written to the file store, then (only after the write
// succeeded) best-effort deleted from the keyring. The returned ref points
// at wherever the token now lives.
//
// Returns ok=false when no token exists; errors are logged, never returned.
func (s *Store) Load(ref Ref) (*Token, Ref, bool) {
	if tok := s.loadFile(ref.Key); tok != nil {
		return tok, Ref{Storage: StorageFile, Key: ref.Key}, true
	}
	if ref.Storage != StorageKeyring {
		return nil, ref, false
	}
	tok := s.loadKeyring(ref.Key)
	if tok == nil {
		return nil, ref, false
	}
	if err := s.saveFile(ref.Key, tok); err != nil {
		slog.Warn("failed to migrate token from keyring to file", "key", ref.Key, "error", err)
		return tok, ref, true
	}
	s.deleteKeyring(ref.Key)
	return tok, Ref{Storage: StorageFile, Key: ref.Key}, true
}

// Save persists the token to the file store. Legacy refs are silently
// rewritten: keyring writes are disallowed going forward, and the returned
// ref tells the caller where the token actually went.
func (s *Store) Save(ref Ref, tok *Token) (Ref, error) {
	if ref.Storage == StorageKeyring {
		slog.Warn("keyring storage is deprecated; saving token to file", "key", ref.Key)
		ref = Ref{Storage: StorageFile, Key: ref.Key}
	}
	if err := s.saveFile(ref.Key, tok); err != nil {
		return ref, err
	}
	return ref, nil
}

// Delete removes the token from both storage kinds. Best effort; never fails.
func (s *Store) Delete(ref Ref) {
	s.deleteKeyring(ref.Key)
	if err := os.Remove(s.path(ref.Key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to delete token file", "key", ref.Key, "error", err)
	}
}

// path maps a credential key like "oauth/kimi-code" onto a file name
// ("kimi-code.json"). Only the last path segment is used.
func (s *Store) path(key string) string {
	name := strings.TrimPrefix(key, "oauth/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = key
	}
	return filepath.Join(s.dir, name+".json")
}

func (s *Store) loadFile(key string) *Token {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to read token file", "key", key, "error", err)
		}
		return nil
	}
	return decodeToken(data)
}

// saveFile writes atomically (temp file + rename) and restricts the result
// to owner read/write. A chmod failure is logged, not fatal.
func (s *Store) saveFile(key string, tok *Token) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating credentials dir: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	path := s.path(key)
	tmp, err := os.CreateTemp(s.dir, "*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		slog.Warn("failed to restrict token file permissions", "path", path, "error", err)
	}
	return nil
}

func (s *Store) loadKeyring(key string) *Token {
	raw, err := keyring.Get(s.service, key)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Warn("failed to read token from keyring", "key", key, "error", err)
		}
		return nil
	}
	if raw == "" {
		return nil
	}
	return decodeToken([]byte(raw))
}

func (s *Store) deleteKeyring(key string) {
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("failed to delete keyring entry", "key", key, "error", err)
	}
}

// decodeToken treats anything that is not a JSON object as absent.
func decodeToken(data []byte) *Token {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil || probe == nil {
		return nil
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil
	}
	return &tok
}
