// Package version exposes the build version reported to the identity
// provider and printed by the CLI.
package version

// Version is overridable at build time:
//
//	go build -ldflags "-X github.com/yumesha/kimi-cli/internal/version.Version=v1.2.3"
var Version = "0.0.0-dev"
