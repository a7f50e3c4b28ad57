package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/linkorder/internal"
	pkgconfig "github.com/starford/linkorder/pkg/config"
)

// exitGroupsNotContiguous is the exit status of "check" when an ordered
// group failed the audit.
const exitGroupsNotContiguous = 2

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// action adapts one of the internal run functions to a CLI action.
func action(name string, run func(context.Context, ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "linkorder",
		Usage:  "Typed entity links with dense, gap-free ordering of sibling links",
		Action: action("serve", internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and seed watcher",
				Action: action("serve", internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: action("mcp", internal.RunMCP),
			},
			{
				Name:   "seed",
				Usage:  "Import changed seed files once and exit",
				Action: action("seed", internal.RunSeed),
			},
			{
				Name:   "check",
				Usage:  "Audit every ordered group for contiguous indexes",
				Action: action("check", internal.RunCheck),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		if errors.Is(err, internal.ErrGroupsNotContiguous) {
			os.Exit(exitGroupsNotContiguous)
		}
		os.Exit(1)
	}
}
