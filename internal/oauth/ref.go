package oauth

// StorageKind identifies where a token is persisted.
type StorageKind string

const (
	// StorageKeyring is the legacy OS credential store. Read-and-migrate
	// only; new tokens are never written there.
	StorageKeyring StorageKind = "keyring"

	// StorageFile is the current storage kind: one JSON document per
	// credential key under the credentials directory.
	StorageFile StorageKind = "file"
)

// Ref identifies where one token lives: a storage kind plus a logical key.
// Multiple configuration entries may carry refs with the same key, meaning
// they share the same underlying token.
type Ref struct {
	Storage StorageKind `json:"storage" toml:"storage" validate:"required,oneof=keyring file"`
	Key     string      `json:"key" toml:"key" validate:"required"`
}

// CredentialKey is the fixed key the device flow stores its token under.
const CredentialKey = "oauth/kimi-code"
