package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/yumesha/kimi-cli/internal/app"
	"github.com/yumesha/kimi-cli/internal/oauth"
	"github.com/yumesha/kimi-cli/internal/observability"
	"github.com/yumesha/kimi-cli/internal/platform"
	"github.com/yumesha/kimi-cli/internal/version"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:    "kimi",
		Usage:   "Kimi Code credential and model manager",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			modelsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads the configuration and installs the logging layer. Every
// subcommand action starts here.
func setup(cmd *cli.Command) (*app.Config, *oauth.Store, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	dir, err := oauth.DefaultStoreDir()
	if err != nil {
		return nil, nil, err
	}
	return cfg, oauth.NewStore(dir), nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate with Kimi Code via the device flow",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "do not open the verification URL in a browser",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "emit progress as JSON events, one per line",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, store, err := setup(cmd)
			if err != nil {
				return err
			}
			events := app.Login(ctx, cfg, store, oauth.NewClient(), platform.NewClient(), app.LoginOptions{
				OpenBrowser: !cmd.Bool("no-browser"),
			})
			return renderEvents(events, cmd.Bool("json"))
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "delete stored credentials and managed configuration",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "emit progress as JSON events, one per line",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, store, err := setup(cmd)
			if err != nil {
				return err
			}
			return renderEvents(app.Logout(cfg, store), cmd.Bool("json"))
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show login and configuration status",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, store, err := setup(cmd)
			if err != nil {
				return err
			}

			ref, ok := cfg.PrimaryRef()
			if !ok {
				fmt.Println("Not logged in.")
				return nil
			}
			token, where, ok := store.Load(ref)
			if !ok {
				fmt.Printf("Not logged in (credential %s is configured but absent).\n", ref.Key)
				return nil
			}

			fmt.Printf("Logged in (credential %s, %s storage).\n", where.Key, where.Storage)
			if expiry := token.Expiry(); !expiry.IsZero() {
				if remaining := time.Until(expiry); remaining > 0 {
					fmt.Printf("Access token expires in %s.\n", remaining.Round(time.Second))
				} else {
					fmt.Println("Access token expired; it will be refreshed on next use.")
				}
			}
			if cfg.DefaultModel != "" {
				fmt.Printf("Default model: %s (thinking: %t)\n", cfg.DefaultModel, cfg.DefaultThinking)
			}
			return nil
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "manage configured models",
		Commands: []*cli.Command{
			{
				Name:  "refresh",
				Usage: "re-enumerate managed platform models and update the config",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, store, err := setup(cmd)
					if err != nil {
						return err
					}

					manager := oauth.NewManager(cfg, store, oauth.NewClient())
					manager.EnsureFresh(ctx)

					changed, err := app.RefreshManagedModels(ctx, cfg, platform.NewClient(), manager)
					if err != nil {
						return err
					}
					if changed {
						fmt.Println("Model list updated.")
					} else {
						fmt.Println("Model list already up to date.")
					}
					return nil
				},
			},
		},
	}
}

// errLoginFailed makes event-driven commands exit non-zero without
// repeating the already rendered message.
var errLoginFailed = errors.New("operation did not complete")

// renderEvents drains the event sequence to stdout, as plain lines or as one
// JSON object per line. It fails when the sequence ends on an error event.
func renderEvents(events iter.Seq[oauth.Event], asJSON bool) error {
	failed := false
	for event := range events {
		failed = event.Type == oauth.EventError
		if asJSON {
			fmt.Println(event.JSON())
			continue
		}
		switch event.Type {
		case oauth.EventVerificationURL:
			fmt.Printf("Open %v and enter the code %v to authorize this device.\n",
				event.Data["verification_url"], event.Data["user_code"])
		case oauth.EventError:
			fmt.Fprintln(os.Stderr, "Error:", event.Message)
		default:
			fmt.Println(event.Message)
		}
	}
	if failed {
		return cli.Exit(errLoginFailed, 1)
	}
	return nil
}
