package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awaistahir/smart-run-planner/internal/logger"
	"github.com/awaistahir/smart-run-planner/internal/milp"
	"github.com/spf13/viper"
)

// Config holds settings shared by the CLI and the daemon.
type Config struct {
	DBPath string       `mapstructure:"db_path"`
	Region string       `mapstructure:"region"`
	Server ServerConfig `mapstructure:"server"`
	Solver SolverConfig `mapstructure:"solver"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SolverConfig selects the exact-strategy backend. An empty Backend disables exact
// scheduling.
type SolverConfig struct {
	Backend  string        `mapstructure:"backend"`
	MaxNodes int           `mapstructure:"max_nodes"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Options converts the solver settings to backend options.
func (s SolverConfig) Options() milp.Options {
	return milp.Options{MaxNodes: s.MaxNodes, Timeout: s.Timeout}
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultDir is $HOME/.smartrun.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartrun"
	}
	return filepath.Join(home, ".smartrun")
}

// Load reads configuration from cfgFile, or config.yaml in DefaultDir when cfgFile is
// empty. A missing default file is not an error. Environment variables prefixed with
// SMARTRUN_ override file values, e.g. SMARTRUN_SOLVER_BACKEND.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SMARTRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(DefaultDir(), "smartrun.db"))
	v.SetDefault("region", "C")
	v.SetDefault("server.port", 8080)
	v.SetDefault("solver.backend", milp.BackendGonum)
	v.SetDefault("solver.max_nodes", 20000)
	v.SetDefault("solver.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
}

// Validate rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must be set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Solver.MaxNodes <= 0 {
		return fmt.Errorf("solver.max_nodes must be positive, got %d", c.Solver.MaxNodes)
	}
	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("solver.timeout must be positive, got %s", c.Solver.Timeout)
	}
	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}
