package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tasklink/internal"
	pkgconfig "github.com/starford/tasklink/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults and environment", slog.String("path", configPath))
	}
	return cfg, nil
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

// withCore runs fn against a wired core that logs to stderr, leaving stdout
// for command output.
func withCore(ctx context.Context, cmd *cli.Command, fn func(*internal.Core) error) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	core, err := internal.Open(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(core)
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncLines(ctx context.Context, cmd *cli.Command) error {
	return withCore(ctx, cmd, func(core *internal.Core) error {
		start := int(cmd.Int("line"))
		end := start
		if cmd.IsSet("to") {
			end = int(cmd.Int("to"))
		}
		res, err := core.Service.SyncLines(ctx, cmd.String("file"), start, end, !cmd.Bool("no-replace"))
		if res != nil {
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if n := res.Failed(); n > 0 {
			return fmt.Errorf("%d of %d lines failed", n, len(res.Lines))
		}
		return nil
	})
}

func syncSection(ctx context.Context, cmd *cli.Command) error {
	return withCore(ctx, cmd, func(core *internal.Core) error {
		res, err := core.Service.SyncSection(ctx, cmd.String("file"), int(cmd.Int("line")), cmd.Bool("pull"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.Root().Writer, res.Markdown)
		return err
	})
}

func today(ctx context.Context, cmd *cli.Command) error {
	return withCore(ctx, cmd, func(core *internal.Core) error {
		md, err := core.Service.Today(ctx)
		if err != nil {
			return err
		}
		if style := cmd.String("style"); style != "" {
			md = renderMarkdown(md, style)
		}
		_, err = fmt.Fprintln(cmd.Root().Writer, md)
		return err
	})
}

// renderMarkdown styles md for a terminal, falling back to the raw text.
func renderMarkdown(md, style string) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	out, err := glamour.Render(md, style)
	if err != nil {
		slog.Warn("render markdown failed", slog.String("error", err.Error()))
		return md
	}
	return strings.TrimSpace(out)
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	token := cmd.Args().First()
	if token == "" {
		return fmt.Errorf("usage: resolve <token>")
	}
	return withCore(ctx, cmd, func(core *internal.Core) error {
		info, err := core.Service.Resolve(ctx, token)
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	})
}

func fileLineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "Note path relative to the vault",
			Required: true,
		},
		&cli.IntFlag{
			Name:     "line",
			Aliases:  []string{"l"},
			Usage:    "Zero-based line number",
			Required: true,
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "tasklink",
		Usage:   "Sync Markdown task lines in a notes vault with a remote to-do service",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the HTTP API, vault watcher and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: serveMCP,
			},
			{
				Name:  "sync",
				Usage: "Sync a range of task lines of a note",
				Flags: append(fileLineFlags(),
					&cli.IntFlag{
						Name:  "to",
						Usage: "Last line of the range, inclusive (default: --line)",
					},
					&cli.BoolFlag{
						Name:  "no-replace",
						Usage: "Create or update the remote tasks without rewriting the note; new tasks get no block link",
					},
				),
				Action: syncLines,
			},
			{
				Name:  "section",
				Usage: "Sync one task with its body and checklist",
				Flags: append(fileLineFlags(),
					&cli.BoolFlag{
						Name:  "pull",
						Usage: "Write remote state into the note instead of pushing",
					},
				),
				Action: syncSection,
			},
			{
				Name:  "today",
				Usage: "Print the Markdown digest of every remote list",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "style",
						Usage: "glamour style for terminal output (dark, light, notty); empty prints raw Markdown",
					},
				},
				Action: today,
			},
			{
				Name:      "resolve",
				Usage:     "Show the remote id and note lines of a block link",
				ArgsUsage: "<token>",
				Action:    resolve,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
