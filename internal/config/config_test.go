package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/test.db
region: H
server:
  port: 9090
solver:
  backend: gonum
  max_nodes: 500
  timeout: 3s
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "H", cfg.Region)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gonum", cfg.Solver.Backend)
	assert.Equal(t, 500, cfg.Solver.MaxNodes)
	assert.Equal(t, 3*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts := cfg.Solver.Options()
	assert.Equal(t, 500, opts.MaxNodes)
	assert.Equal(t, 3*time.Second, opts.Timeout)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, "region: A\n")
	t.Setenv("SMARTRUN_SERVER_PORT", "7000")
	t.Setenv("SMARTRUN_SOLVER_BACKEND", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "A", cfg.Region)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "", cfg.Solver.Backend)
	assert.Equal(t, 20000, cfg.Solver.MaxNodes)
	assert.Equal(t, 10*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DBPath: "x.db",
			Server: ServerConfig{Port: 8080},
			Solver: SolverConfig{Backend: "gonum", MaxNodes: 10, Timeout: time.Second},
			Log:    LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"no nodes", func(c *Config) { c.Solver.MaxNodes = 0 }},
		{"no timeout", func(c *Config) { c.Solver.Timeout = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
