package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"1,2,3", []string{"1", "2", "3"}},
		{" 1 , ,2,, ", []string{"1", "2"}},
		{",,,", nil},
		{"123456789", []string{"123456789"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCSV(tt.in), "input %q", tt.in)
	}
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Local.Driver)
	assert.Equal(t, "data/rhiza_local.db", cfg.Local.Path)
	assert.Equal(t, 0.0306, cfg.Earnings.BaseROI)
	assert.Equal(t, time.Second, cfg.Earnings.TickInterval)
	assert.Equal(t, time.Minute, cfg.Earnings.SyncInterval)
	assert.Equal(t, time.Hour, cfg.Earnings.RateLimitWindow)
	assert.Equal(t, 12, cfg.Earnings.MaxSyncsPerWindow)
	assert.Equal(t, 5*time.Minute, cfg.Earnings.SyncPeriod)
	assert.Equal(t, time.Hour, cfg.Earnings.ReconcileInterval)
	assert.Equal(t, 30*time.Second, cfg.TON.CacheTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  addr: ":9000"
local:
  driver: file
earnings:
  sync_interval: 2m
  max_syncs_per_window: 6
admin:
  super_admin_ids: ["7"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("SUPER_ADMIN_IDS", " 1, 2 ,,3")
	t.Setenv("SUPER_ADMIN_TELEGRAM_IDS", "")
	t.Setenv("VITE_SUPER_ADMIN_TELEGRAM_IDS", "555")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("BASE_ROI", "0.05")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Local.Driver)
	assert.Equal(t, "data/local_state.json", cfg.Local.Path)
	assert.Equal(t, 2*time.Minute, cfg.Earnings.SyncInterval)
	assert.Equal(t, 6, cfg.Earnings.MaxSyncsPerWindow)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Admin.SuperAdminIDs)
	assert.Equal(t, []string{"555"}, cfg.Admin.SuperAdminTelegramIDs)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, 0.05, cfg.Earnings.BaseROI)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.Local.Driver = "redis"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Telegram.BotToken = "token"
	assert.Error(t, cfg.Validate(), "chat id required with bot token")

	cfg = valid()
	cfg.Backend.URL = "https://example.supabase.co"
	assert.Error(t, cfg.Validate(), "api key required with backend url")

	cfg = valid()
	cfg.Earnings.RateLimitWindow = time.Second
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Earnings.MaxSyncsPerWindow = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadDotEnv_SkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("RHIZA_TEST_DOTENV=from-file\nRHIZA_TEST_PRESET=from-file\n"), 0o644))

	t.Setenv("RHIZA_TEST_PRESET", "from-env")
	t.Cleanup(func() { os.Unsetenv("RHIZA_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), envPath))
	assert.Equal(t, "from-file", os.Getenv("RHIZA_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("RHIZA_TEST_PRESET"))
}
