package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  allowed_origins: ["https://a.example"]
store:
  driver: memory
poll:
  interval: 4s
  enabled: false
log:
  format: console
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 4*time.Second, cfg.Poll.Interval)
	assert.False(t, cfg.Poll.Enabled)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8*time.Second, cfg.Poll.Timeout, "untouched keys keep defaults")
	assert.Equal(t, 12, cfg.Board.GridSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PLANNER_ADDR", ":7000")
	t.Setenv("PLANNER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PLANNER_POLL_INTERVAL", "1500ms")
	t.Setenv("PLANNER_POLL_ENABLED", "false")
	t.Setenv("PLANNER_RATE_RPS", "2.5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 1500*time.Millisecond, cfg.Poll.Interval)
	assert.False(t, cfg.Poll.Enabled)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"PLANNER_POLL_INTERVAL": "soon"}},
		{"bad number", map[string]string{"PLANNER_GRID_SIZE": "twelve"}},
		{"unknown driver", map[string]string{"PLANNER_STORE_DRIVER": "s3"}},
		{"postgres without dsn", map[string]string{"PLANNER_STORE_DRIVER": "postgres"}},
		{"zero grid", map[string]string{"PLANNER_GRID_SIZE": "0"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("PLANNER_DSN", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to unmarshal config")
}
