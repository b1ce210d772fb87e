package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/board"
	"github.com/DoyleJ11/foundry-planner/internal/channel"
	"github.com/DoyleJ11/foundry-planner/internal/client"
	"github.com/DoyleJ11/foundry-planner/internal/lobby"
	"github.com/DoyleJ11/foundry-planner/internal/poll"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
)

func previewCommand() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "follow a board headlessly and redraw it to a file on every change",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", Usage: "planner server base URL"},
			&cli.StringFlag{Name: "code", Usage: "relay session code; without one the preview only polls"},
			&cli.StringFlag{Name: "legion", Usage: "legion to show"},
			&cli.IntFlag{Name: "stage", Usage: "stage number to show"},
			&cli.StringFlag{Name: "filter", Usage: "only list players holding this building"},
			&cli.BoolFlag{Name: "grid", Usage: "draw the tile grid"},
			&cli.StringFlag{Name: "out", Value: "board.svg", Usage: "output file (.svg or .png)"},
			&cli.BoolFlag{Name: "force-poll", Usage: "poll even when polling is disabled in the config"},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cl, err := client.New(c.String("server"), client.WithLogger(log))
			if err != nil {
				return err
			}
			res, err := cl.Read(ctx, store.Token{})
			if err != nil {
				return fmt.Errorf("initial load: %w", err)
			}
			doc, err := board.Parse(res.Body)
			if err != nil {
				return fmt.Errorf("initial load: %w", err)
			}

			format := view.FormatSVG
			if filepath.Ext(c.String("out")) == ".png" {
				format = view.FormatPNG
			}
			out := c.String("out")
			draw := func(sc view.Scene) {
				if err := writeScene(out, sc, format); err != nil {
					log.Warn("redraw failed", zap.Error(err))
					return
				}
				log.Debug("redrawn", zap.String("file", out), zap.Int("version", sc.Version))
			}

			pcfg := poll.Config{
				Enabled:    cfg.Poll.Enabled,
				Interval:   cfg.Poll.Interval,
				Timeout:    cfg.Poll.Timeout,
				MaxBackoff: cfg.Poll.MaxBackoff,
			}
			sess := view.Session{
				LegionID: c.String("legion"),
				Stage:    c.Int("stage"),
				Filter:   c.String("filter"),
				Grid:     c.Bool("grid"),
			}
			p := view.NewPreview(doc, sess, boardConfig(cfg),
				view.WithPreviewLogger(log),
				view.WithDraw(draw),
				view.WithPolling(cl, pcfg, res.Token, poll.WithLogger(log)),
			)
			if c.Bool("force-poll") && !cfg.Poll.Enabled {
				p.Poller().EnableFor(cfg.Poll.Override, cfg.Poll.Interval)
			}

			var conn channel.Conn
			if code := c.String("code"); code != "" {
				ws, err := dialRelay(ctx, c.String("server"), code, lobby.RolePreview)
				if err != nil {
					log.Warn("relay unavailable, polling only", zap.Error(err))
				} else {
					defer ws.Close()
					conn = ws
				}
			}

			err = p.Run(ctx, conn)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func relayURL(server, code string, role lobby.Role) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"code": {code}, "role": {string(role)}}.Encode()
	return u.String(), nil
}

func writeScene(path string, sc view.Scene, f view.Format) error {
	tmp := path + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := view.Render(fh, sc, f); err != nil {
		fh.Close()
		os.Remove(tmp)
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
