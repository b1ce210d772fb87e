// Package config loads planner settings from a YAML file with PLANNER_*
// environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	Board     BoardConfig     `yaml:"board"`
	Poll      PollConfig      `yaml:"poll"`
	Save      SaveConfig      `yaml:"save"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	OriginPatterns []string      `yaml:"origin_patterns"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type StoreConfig struct {
	Driver      string        `yaml:"driver"` // file|postgres|memory
	DataFile    string        `yaml:"data_file"`
	HistoryDir  string        `yaml:"history_dir"`
	DSN         string        `yaml:"dsn"`
	Key         string        `yaml:"key"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type AuthConfig struct {
	AdminPasswordHash string `yaml:"admin_password_hash"`
	// AdminPassword is compared as is when no hash is set.
	AdminPassword string `yaml:"admin_password"`
}

type BoardConfig struct {
	GridSize   int     `yaml:"grid_size"`
	TileWidth  float64 `yaml:"tile_width"`
	TileHeight float64 `yaml:"tile_height"`
}

type PollConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxBackoff int           `yaml:"max_backoff"`
	Override   time.Duration `yaml:"override"`
}

type SaveConfig struct {
	RetryDelay     time.Duration `yaml:"retry_delay"`
	MaxLockRetries int           `yaml:"max_lock_retries"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver:      "file",
			DataFile:    "foundry_map_data.json",
			HistoryDir:  "history",
			Key:         "default",
			LockTimeout: 5 * time.Second,
		},
		Board: BoardConfig{GridSize: 12, TileWidth: 120, TileHeight: 100},
		Poll: PollConfig{
			Enabled:    true,
			Interval:   2500 * time.Millisecond,
			Timeout:    8 * time.Second,
			MaxBackoff: 32,
			Override:   5 * time.Minute,
		},
		Save:      SaveConfig{RetryDelay: 250 * time.Millisecond, MaxLockRetries: 3},
		RateLimit: RateLimitConfig{RPS: 10, Burst: 20},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults and environment apply alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "file", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Board.GridSize <= 0 || c.Board.TileWidth <= 0 || c.Board.TileHeight <= 0 {
		return errors.New("board dimensions must be positive")
	}
	if c.Poll.Interval <= 0 || c.Poll.Timeout <= 0 || c.Poll.MaxBackoff < 1 {
		return errors.New("poll interval, timeout and max_backoff must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = nil
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					*dst = append(*dst, s)
				}
			}
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("PLANNER_ADDR", &cfg.Server.Addr)
	list("PLANNER_ALLOWED_ORIGINS", &cfg.Server.AllowedOrigins)
	list("PLANNER_ORIGIN_PATTERNS", &cfg.Server.OriginPatterns)
	str("PLANNER_STORE_DRIVER", &cfg.Store.Driver)
	str("PLANNER_DATA_FILE", &cfg.Store.DataFile)
	str("PLANNER_HISTORY_DIR", &cfg.Store.HistoryDir)
	str("DATABASE_URL", &cfg.Store.DSN)
	str("PLANNER_DSN", &cfg.Store.DSN)
	dur("PLANNER_LOCK_TIMEOUT", &cfg.Store.LockTimeout)
	str("PLANNER_ADMIN_PASSWORD_HASH", &cfg.Auth.AdminPasswordHash)
	str("PLANNER_ADMIN_PASSWORD", &cfg.Auth.AdminPassword)
	num("PLANNER_GRID_SIZE", &cfg.Board.GridSize)
	if v := os.Getenv("PLANNER_POLL_ENABLED"); v != "" {
		cfg.Poll.Enabled = v == "true"
	}
	dur("PLANNER_POLL_INTERVAL", &cfg.Poll.Interval)
	dur("PLANNER_POLL_TIMEOUT", &cfg.Poll.Timeout)
	num("PLANNER_POLL_MAX_BACKOFF", &cfg.Poll.MaxBackoff)
	dur("PLANNER_SAVE_RETRY_DELAY", &cfg.Save.RetryDelay)
	num("PLANNER_SAVE_MAX_LOCK_RETRIES", &cfg.Save.MaxLockRetries)
	float("PLANNER_RATE_RPS", &cfg.RateLimit.RPS)
	num("PLANNER_RATE_BURST", &cfg.RateLimit.Burst)
	str("PLANNER_LOG_LEVEL", &cfg.Log.Level)
	str("PLANNER_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}
