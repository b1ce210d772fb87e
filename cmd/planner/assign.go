package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/channel"
	"github.com/DoyleJ11/foundry-planner/internal/client"
	"github.com/DoyleJ11/foundry-planner/internal/lobby"
	"github.com/DoyleJ11/foundry-planner/internal/savequeue"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
)

// assignCommand is the editor side of a relay session: it changes one
// assignment, saves it and pushes the saved document to the session's
// previews.
func assignCommand() *cli.Command {
	return &cli.Command{
		Name:  "assign",
		Usage: "assign a player to a building (or remove them) as the session editor",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "planner server base URL"},
			&cli.StringFlag{Name: "admin-key", Usage: "admin password for saves", EnvVars: []string{"PLANNER_ADMIN_KEY"}},
			&cli.StringFlag{Name: "code", Usage: "relay session code; without one nothing is pushed and previews rely on polling"},
			&cli.StringFlag{Name: "legion", Required: true},
			&cli.IntFlag{Name: "stage", Required: true, Usage: "stage number; created on first assignment"},
			&cli.StringFlag{Name: "player", Required: true},
			&cli.StringFlag{Name: "building", Required: true},
			&cli.BoolFlag{Name: "remove", Usage: "unassign instead of assign"},
			&cli.BoolFlag{Name: "hold", Usage: "stay connected and answer previews until interrupted"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := c.String("server")
			cl, err := client.New(server, client.WithAdminKey(c.String("admin-key")), client.WithLogger(log))
			if err != nil {
				return err
			}
			doc, err := loadDocument(ctx, cl)
			if err != nil {
				return err
			}

			qopts := []savequeue.Option{
				savequeue.WithRetryDelay(cfg.Save.RetryDelay),
				savequeue.WithMaxLockRetries(cfg.Save.MaxLockRetries),
			}
			sess := view.Session{LegionID: c.String("legion"), Stage: c.Int("stage")}
			ed, err := view.NewEditor(doc, sess, cl, qopts,
				view.WithAutosave(true),
				view.WithEditorLogger(log),
				view.WithEditorConfig(boardConfig(cfg)),
			)
			if err != nil {
				return err
			}

			var attached <-chan error
			if code := c.String("code"); code != "" {
				conn, err := dialRelay(ctx, server, code, lobby.RoleEditor)
				if err != nil {
					log.Warn("relay unavailable, saving without a push", zap.Error(err))
				} else {
					defer conn.Close()
					attached = ed.Start(ctx, conn)
				}
			}

			if err := applyAssignment(ctx, ed, c.String("player"), c.String("building"), c.Bool("remove")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "saved version %d\n", ed.LastVersion())

			if !c.Bool("hold") || attached == nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case err := <-attached:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		},
	}
}

func applyAssignment(ctx context.Context, ed *view.Editor, player, building string, remove bool) error {
	player = board.CleanName(player)
	if player == "" {
		return cli.Exit("player must not be blank", 2)
	}
	var err error
	if remove {
		_, err = ed.Unassign(ctx, player, building)
	} else {
		_, err = ed.Assign(ctx, player, building)
	}
	if code := store.CodeOf(err); code != "" {
		return fmt.Errorf("save %s: %w", code, err)
	}
	return err
}

func dialRelay(ctx context.Context, server, code string, role lobby.Role) (channel.Conn, error) {
	u, err := relayURL(server, code, role)
	if err != nil {
		return nil, err
	}
	ws, err := channel.Dial(ctx, u)
	if err != nil {
		return nil, err
	}
	return ws, nil
}
