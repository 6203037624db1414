// Package oauth implements the device-authorization flow and the credential
// lifecycle for Kimi Code OAuth tokens.
//
// The package has four parts:
//   - Store: durable token persistence (file-backed, with a one-way migration
//     path out of the OS keyring)
//   - Client: the provider protocol (device authorization, device-grant
//     polling, refresh grant)
//   - the device flow itself, which narrates its progress as Events
//   - Manager: the per-session facade owning the access-token cache and the
//     background refresh loop
//
// The on-disk store is the source of truth and may be shared with other
// concurrently running sessions; every refresh decision re-reads it so a
// token rotated by another process is never clobbered or deleted.
package oauth
