package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/lorekeeper/internal"
	pkgconfig "github.com/starford/lorekeeper/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("usage: ask [--complete] <question>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Ask(ctx, question, cmd.Bool("complete"), internal.WithConfig(cfg), internal.WithOutput(os.Stdout))
}

func main() {
	cmd := &cli.Command{
		Name:   "lorekeeper",
		Usage:  "Discord lore and FAQ bot with a patch-notes dashboard",
		Action: serve,
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
				Usage:  "Run the bot, the dashboard and the file watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the knowledge base and drafts over MCP on stdio",
				Action: mcp,
			},
			{
				Name:      "ask",
				Usage:     "Print the context assembled for a question",
				ArgsUsage: "<question>",
				Action:    ask,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "complete",
						Usage: "Also send the question to the model and print the answer",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
