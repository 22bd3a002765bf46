package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/codex/internal"
	"github.com/starford/codex/internal/chain"
	"github.com/starford/codex/internal/mcpserver"
	"github.com/starford/codex/internal/passage"
	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/tracker"
	pkgconfig "github.com/starford/codex/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openStore opens the notes store and, when required, attaches the
// scripture corpus.
func openStore(cfg *internal.Config, needCorpus bool) (*store.Store, error) {
	st, err := store.Open(cfg.Notes.Path)
	if err != nil {
		return nil, err
	}
	if needCorpus {
		if err := st.AttachScriptures(cfg.Scriptures.Path); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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

func rebuildChains(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := chain.Rebuild(ctx, st, chain.Options{
		NoteID:      cmd.Int("note-id"),
		OnlyMissing: cmd.Bool("only-missing"),
		DryRun:      cmd.Bool("dry-run"),
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func validatePassages(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := passage.Validate(ctx, st, scripture.NewReader(st.DB()))
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func fillCitations(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := passage.FillCitations(ctx, st, scripture.NewReader(st.DB()), passage.FillOptions{
		Force:  cmd.Bool("force"),
		DryRun: cmd.Bool("dry-run"),
	})
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func markProcessed(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := tracker.Mark(ctx, st, tracker.Selector{
		IDs:              cmd.IntSlice("id"),
		Paths:            cmd.StringSlice("path"),
		AllWithArtifacts: cmd.Bool("all-with-artifacts"),
	}, !cmd.Bool("unset"))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer st.Close()

	return mcpserver.New(st, scripture.NewReader(st.DB())).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	dryRunFlag := &cli.BoolFlag{Name: "dry-run", Usage: "Report intended changes without writing"}

	cmd := &cli.Command{
		Name:   "codex",
		Usage:  "Notes store consistency engine: page chains, passage validation, citation labels, OCR ingest",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream, and artifact watcher",
				Action: serve,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "rebuild-chains",
				Usage:  "Recompute page chain pointers from page order",
				Action: rebuildChains,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{Name: "note-id", Usage: "Limit the rebuild to one note (0 for all)"},
					&cli.BoolFlag{Name: "only-missing", Usage: "Complete null or dangling pointers only"},
					dryRunFlag,
				},
			},
			{
				Name:   "validate-passages",
				Usage:  "Check passage references against the scripture corpus",
				Action: validatePassages,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "fill-citations",
				Usage:  "Render citation labels for passages missing one",
				Action: fillCitations,
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{Name: "force", Usage: "Rewrite labels that are already present"},
					dryRunFlag,
				},
			},
			{
				Name:   "mark-processed",
				Usage:  "Set or clear the fully-processed flag on scan files",
				Action: markProcessed,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntSliceFlag{Name: "id", Usage: "File id (repeatable)"},
					&cli.StringSliceFlag{Name: "path", Usage: "File path (repeatable)"},
					&cli.BoolFlag{Name: "all-with-artifacts", Usage: "Select every file with both OCR artifacts"},
					&cli.BoolFlag{Name: "unset", Usage: "Clear the flag instead of setting it"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
