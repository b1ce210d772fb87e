package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/config"
	"github.com/DoyleJ11/foundry-planner/internal/logging"
	"github.com/DoyleJ11/foundry-planner/internal/view"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "planner",
		Usage: "foundry battle-plan board server and tools",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "planner.yaml", Usage: "path to the configuration file", EnvVars: []string{"PLANNER_CONFIG"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			previewCommand(),
			assignCommand(),
			importCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads configuration and builds the logger every command shares.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func boardConfig(cfg *config.Config) view.Config {
	return view.Config{GridSize: cfg.Board.GridSize, TileW: cfg.Board.TileWidth, TileH: cfg.Board.TileHeight}
}
