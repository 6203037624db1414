package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/yumesha/kimi-cli/internal/app"
)

// envPrefix is stripped from environment variables during config loading
// (e.g., KIMI_LOG_LEVEL → log_level, KIMI_SERVICES__SEARCH__BASE_URL →
// services.search.base_url).
const envPrefix = "KIMI_"

// loadConfig loads application configuration with precedence:
// config file → environment variables → CLI flags → defaults.
//
// With no --config flag the default location is used and a missing file means
// a fresh, writable configuration. An explicit path must exist, and marks the
// configuration read-only for login and migration.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	fromDefault := configPath == ""
	if fromDefault {
		var err error
		configPath, err = app.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	k := koanf.New(".")

	// 1. Load from config file
	if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
		if !fromDefault || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// 2. Load from environment variables
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// 3. Load from CLI flags if provided
	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	config.SetOrigin(configPath, fromDefault)
	return config, nil
}

// extractAndTransformFlags transforms CLI flag names to match config
// structure. Includes parent flags. Examples: --log-level → log_level.
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}
		// The config path itself is not part of the configuration.
		if name == "config" || name == "c" {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}
