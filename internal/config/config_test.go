package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("INBOXPILOT_DATA_DIR", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageFiles, cfg.Storage)
	assert.Equal(t, 4, cfg.RPS)
	assert.Equal(t, 30*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 100, cfg.MaxEmails)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "inboxpilot", filepath.Base(cfg.DataDir))
	assert.Equal(t, ".gmailctl", filepath.Base(cfg.GmailctlDir))
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INBOXPILOT_DATA_DIR", dir)
	t.Setenv("INBOXPILOT_GMAILCTL_DIR", "/tmp/gmailctl")
	t.Setenv("INBOXPILOT_STORAGE", "SQLite")
	t.Setenv("INBOXPILOT_ACTION_TIMEOUT", "5s")
	t.Setenv("INBOXPILOT_CONCURRENCY", "4")
	t.Setenv("INBOXPILOT_SELF", " Me@Example.com, ,alias@example.com")
	t.Setenv("INBOXPILOT_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "/tmp/gmailctl", cfg.GmailctlDir)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 5*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"me@example.com", "alias@example.com"}, cfg.Self)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"INBOXPILOT_STORAGE":        "postgres",
		"INBOXPILOT_CONCURRENCY":    "0",
		"INBOXPILOT_ACTION_TIMEOUT": "0s",
		"INBOXPILOT_PAGE_SIZE":      "1000",
		"INBOXPILOT_RPS":            "not-a-number",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("INBOXPILOT_DATA_DIR", t.TempDir())
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{StorageFiles, StorageSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := &Config{DataDir: filepath.Join(t.TempDir(), "nested"), Storage: backend}
			s, closeFn, err := cfg.OpenStore()
			require.NoError(t, err)
			defer func() { assert.NoError(t, closeFn()) }()

			c, err := s.LoadCriteria(context.Background())
			require.NoError(t, err)
			assert.Nil(t, c)
		})
	}
}
