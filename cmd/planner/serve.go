package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/foundry-planner/internal/config"
	"github.com/DoyleJ11/foundry-planner/internal/httpapi"
	"github.com/DoyleJ11/foundry-planner/internal/hub"
	"github.com/DoyleJ11/foundry-planner/internal/store"
)

const shutdownGrace = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the document store and relay server",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	auth := httpapi.NewAuthenticator(cfg.Auth.AdminPasswordHash, cfg.Auth.AdminPassword)
	if !auth.Enabled() {
		log.Warn("no admin password configured, saves are open to anyone")
	}

	var limiter *httpapi.IPRateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = httpapi.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}

	h := hub.NewHub(ctx, log)
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:            h,
		Store:          backend,
		Auth:           auth,
		Metrics:        httpapi.NewMetrics(),
		Limiter:        limiter,
		Board:          boardConfig(cfg),
		OriginPatterns: cfg.Server.OriginPatterns,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            log,
	})

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		// websocket connections outlive any write timeout, so only headers are bounded
		ReadHeaderTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// the hub shares ctx, so relay rooms are already closing
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Backend, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "postgres":
		db, err := store.OpenPostgres(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgresStore(db, cfg.Store.Key, log)
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	default:
		opts := []store.FileOption{store.WithLogger(log), store.WithLockTimeout(cfg.Store.LockTimeout)}
		if cfg.Store.HistoryDir != "" {
			opts = append(opts, store.WithHistoryDir(cfg.Store.HistoryDir))
		}
		return store.NewFileStore(cfg.Store.DataFile, opts...), nil
	}
}
