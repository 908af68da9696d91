package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/warden/internal/logger"
)

// Role decides whether this daemon may forward control requests to peers.
// An agent owns only its local table and refuses /remote targets.
const (
	RoleServer = "server"
	RoleAgent  = "agent"
)

// Runner configures how children are launched.
type Runner struct {
	Shell   string   `mapstructure:"shell"`
	Args    []string `mapstructure:"args"`
	LogPath string   `mapstructure:"log_path"`
}

// Daemon configures the supervisor loop.
type Daemon struct {
	CrashLimit uint64        `mapstructure:"restarts"`
	Interval   time.Duration `mapstructure:"interval"`
	TermGrace  time.Duration `mapstructure:"term_grace"`
	Web        Web           `mapstructure:"web"`
}

// Web configures the HTTP control surface.
type Web struct {
	API     bool   `mapstructure:"api"`
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Secure  Secure `mapstructure:"secure"`
}

// Secure enables token authentication on every request.
type Secure struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// History configures the lifecycle-event sink.
type History struct {
	Type  string `mapstructure:"type"` // "sqlite" (default), "postgres", "clickhouse", "none"
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Config is the parsed daemon configuration consumed by the core.
type Config struct {
	StateDir string        `mapstructure:"-"`
	Role     string        `mapstructure:"role"`
	Runner   Runner        `mapstructure:"runner"`
	Daemon   Daemon        `mapstructure:"daemon"`
	History  History       `mapstructure:"history"`
	Log      logger.Config `mapstructure:"log"`
}

// DefaultStateDir is <home>/.warden, overridable with WARDEN_HOME.
func DefaultStateDir() string {
	if v := os.Getenv("WARDEN_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

func (c *Config) DumpPath() string    { return filepath.Join(c.StateDir, "dump") }
func (c *Config) LogsDir() string     { return filepath.Join(c.StateDir, "logs") }
func (c *Config) ServersPath() string { return filepath.Join(c.StateDir, "servers.toml") }
func (c *Config) AgentPath() string   { return filepath.Join(c.StateDir, "agent.toml") }
func (c *Config) PIDPath() string     { return filepath.Join(c.StateDir, "daemon.pid") }

// Default returns the configuration used when no config file exists in the
// state directory.
func Default(stateDir string) *Config {
	if stateDir == "" {
		stateDir = DefaultStateDir()
	}
	return &Config{
		StateDir: stateDir,
		Role:     RoleServer,
		Runner: Runner{
			Shell:   "/bin/sh",
			Args:    []string{"-c"},
			LogPath: filepath.Join(stateDir, "logs"),
		},
		Daemon: Daemon{
			CrashLimit: 10,
			Interval:   time.Second,
			TermGrace:  5 * time.Second,
			Web: Web{
				API:     true,
				Address: "127.0.0.1",
				Port:    9876,
			},
		},
		History: History{
			Type: "sqlite",
			DSN:  filepath.Join(stateDir, "history.db"),
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(stateDir, "daemon.log"),
		},
	}
}

// Load reads <stateDir>/config.toml over the defaults. A missing file is not
// an error; a malformed one is.
func Load(stateDir string) (*Config, error) {
	cfg := Default(stateDir)
	path := filepath.Join(cfg.StateDir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.StateDir = stateDirOr(cfg.StateDir, stateDir)
	return cfg, nil
}

func stateDirOr(current, requested string) string {
	if requested != "" {
		return requested
	}
	if current != "" {
		return current
	}
	return DefaultStateDir()
}

// EnsureStateDir creates the state directory tree.
func (c *Config) EnsureStateDir() error {
	for _, d := range []string{c.StateDir, c.LogsDir()} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return err
		}
	}
	return nil
}
