// Package config loads inboxpilot settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/joshsymonds/inboxpilot/internal/store"
)

const (
	StorageFiles  = "files"
	StorageSQLite = "sqlite"
)

// Config is shared by every inboxpilot command. CLI flags override it.
type Config struct {
	// Gmail
	GmailctlDir string `env:"INBOXPILOT_GMAILCTL_DIR"` // defaults to ~/.gmailctl
	RPS         int    `env:"INBOXPILOT_RPS" envDefault:"4"`
	PageSize    int    `env:"INBOXPILOT_PAGE_SIZE" envDefault:"100"`

	// Storage
	DataDir string `env:"INBOXPILOT_DATA_DIR"` // defaults to $XDG_DATA_HOME/inboxpilot
	Storage string `env:"INBOXPILOT_STORAGE" envDefault:"files"`

	// Automation
	ActionTimeout time.Duration `env:"INBOXPILOT_ACTION_TIMEOUT" envDefault:"30s"`
	Concurrency   int           `env:"INBOXPILOT_CONCURRENCY" envDefault:"1"`
	MaxEmails     int           `env:"INBOXPILOT_MAX_EMAILS" envDefault:"100"`

	// Self lists the user's own addresses, used to decide whether a message
	// was sent to them directly.
	Self []string `env:"INBOXPILOT_SELF" envSeparator:","`

	// Logging
	LogLevel  string `env:"INBOXPILOT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"INBOXPILOT_LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(xdg.DataHome, "inboxpilot")
	}
	if strings.TrimSpace(c.GmailctlDir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		c.GmailctlDir = filepath.Join(home, ".gmailctl")
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	self := c.Self[:0]
	for _, s := range c.Self {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			self = append(self, s)
		}
	}
	c.Self = self
	return nil
}

// Validate rejects values no command can run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFiles, StorageSQLite:
	default:
		return fmt.Errorf("INBOXPILOT_STORAGE must be %q or %q, got %q", StorageFiles, StorageSQLite, c.Storage)
	}
	if c.RPS < 0 {
		return fmt.Errorf("INBOXPILOT_RPS must not be negative, got %d", c.RPS)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("INBOXPILOT_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	if c.ActionTimeout <= 0 {
		return fmt.Errorf("INBOXPILOT_ACTION_TIMEOUT must be positive, got %s", c.ActionTimeout)
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		return fmt.Errorf("INBOXPILOT_PAGE_SIZE must be between 1 and 500, got %d", c.PageSize)
	}
	return nil
}

// OpenStore opens the configured backend. The returned close function is
// always non-nil.
func (c *Config) OpenStore() (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.Storage {
	case StorageSQLite:
		if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
			return nil, noop, fmt.Errorf("create data directory: %w", err)
		}
		s, err := store.NewSQLite(filepath.Join(c.DataDir, "inboxpilot.db"))
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		s, err := store.NewFiles(c.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}
