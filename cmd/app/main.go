package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/council/internal"
	pkgconfig "github.com/starford/council/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
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

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func importICS(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p := internal.ImportParams{
		File:        cmd.String("file"),
		Committee:   cmd.String("committee"),
		MeetingType: cmd.String("type"),
		DryRun:      cmd.Bool("dry-run"),
		Generate:    cmd.Bool("generate"),
	}
	if p.From, err = parseDay(cmd.String("from")); err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	if p.To, err = parseDay(cmd.String("to")); err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	if !p.To.IsZero() {
		// --to names the last day to include.
		p.To = p.To.AddDate(0, 0, 1)
	}

	if _, err := internal.RunImport(ctx, p, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "council",
		Usage:  "City council meeting calendar with generated agenda PDFs",
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
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Action: mcp,
			},
			{
				Name:  "import",
				Usage: "Import meetings from an iCalendar file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Path to the .ics file, - for stdin", Required: true},
					&cli.StringFlag{Name: "from", Usage: "First day to import (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "to", Usage: "Last day to import (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "committee", Usage: "Committee of the imported meetings"},
					&cli.StringFlag{Name: "type", Usage: "Meeting type for events not naming the city council"},
					&cli.BoolFlag{Name: "dry-run", Usage: "List the meetings without storing them"},
					&cli.BoolFlag{Name: "generate", Usage: "Render each agenda right away"},
				},
				Action: importICS,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
