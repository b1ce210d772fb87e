package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/client"
	"github.com/DoyleJ11/foundry-planner/internal/config"
	"github.com/DoyleJ11/foundry-planner/internal/importer"
	"github.com/DoyleJ11/foundry-planner/internal/savequeue"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
)

var targetFlags = []cli.Flag{
	&cli.StringFlag{Name: "server", Usage: "planner server base URL; without it the configured store is used directly"},
	&cli.StringFlag{Name: "admin-key", Usage: "admin password for saves", EnvVars: []string{"PLANNER_ADMIN_KEY"}},
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "merge assignments from a CSV or XLSX file into the board",
		ArgsUsage: "<file>",
		Flags:     targetFlags,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("import needs exactly one file", 2)
			}
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			parser, err := importer.NewFactory().GetParser(path)
			if err != nil {
				return err
			}
			parsed, err := parser.Parse(data)
			if err != nil {
				return err
			}

			ctx := c.Context
			rw, closeFn, err := openTarget(ctx, c, cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()

			doc, err := loadDocument(ctx, rw)
			if err != nil {
				return err
			}
			qopts := []savequeue.Option{
				savequeue.WithRetryDelay(cfg.Save.RetryDelay),
				savequeue.WithMaxLockRetries(cfg.Save.MaxLockRetries),
			}
			ed, err := view.NewEditor(doc, view.Session{}, rw, qopts,
				view.WithAutosave(true),
				view.WithEditorLogger(log),
				view.WithEditorConfig(boardConfig(cfg)),
			)
			if err != nil {
				return err
			}
			added, err := ed.Import(ctx, parsed.Rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "imported %d assignments (%d rows skipped), version %d\n", added, parsed.Skipped, ed.LastVersion())
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "out", Value: "assignments.csv", Usage: "output file (.csv or .xlsx)"},
		&cli.BoolFlag{Name: "roster", Usage: "export legion rosters instead of assignments"},
	}, targetFlags...)
	return &cli.Command{
		Name:  "export",
		Usage: "write assignments or rosters to CSV or XLSX",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			rw, closeFn, err := openTarget(c.Context, c, cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()
			doc, err := loadDocument(c.Context, rw)
			if err != nil {
				return err
			}

			records := importer.AssignmentRecords(doc)
			if c.Bool("roster") {
				records = importer.RosterRecords(doc)
			}
			out := c.String("out")
			var body []byte
			switch strings.ToLower(filepath.Ext(out)) {
			case ".xlsx":
				if body, err = importer.WriteXLSX(records); err != nil {
					return err
				}
			case ".csv":
				body = importer.WriteCSV(records)
			default:
				return cli.Exit("output must end in .csv or .xlsx", 2)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return err
			}
			log.Info("exported", zap.String("file", out), zap.Int("rows", len(records)-1))
			return nil
		},
	}
}

type readWriter interface {
	store.Reader
	store.Writer
}

// openTarget picks the remote server when --server is given and the
// configured backend otherwise.
func openTarget(ctx context.Context, c *cli.Context, cfg *config.Config, log *zap.Logger) (readWriter, func(), error) {
	if server := c.String("server"); server != "" {
		cl, err := client.New(server, client.WithAdminKey(c.String("admin-key")), client.WithLogger(log))
		if err != nil {
			return nil, nil, err
		}
		return cl, func() {}, nil
	}
	if cfg.Store.Driver == "memory" {
		return nil, nil, cli.Exit("the memory store has nothing to import into; pass --server", 2)
	}
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store.Local{Backend: backend}, func() { _ = backend.Close() }, nil
}

func loadDocument(ctx context.Context, r store.Reader) (*board.Document, error) {
	res, err := r.Read(ctx, store.Token{})
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return board.Parse(res.Body)
}
