package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Backend struct {
		URL     string        `yaml:"url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Database struct {
		URL           string `yaml:"url"`
		RunMigrations bool   `yaml:"run_migrations"`
	} `yaml:"database"`
	Local struct {
		Driver string `yaml:"driver"` // sqlite, file or memory
		Path   string `yaml:"path"`
	} `yaml:"local"`
	Earnings struct {
		BaseROI           float64       `yaml:"base_roi"`
		TickInterval      time.Duration `yaml:"tick_interval"`
		SyncInterval      time.Duration `yaml:"sync_interval"` // minimum spacing between two syncs
		SyncPeriod        time.Duration `yaml:"sync_period"`   // periodic sync timer
		RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
		MaxSyncsPerWindow int           `yaml:"max_syncs_per_window"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	} `yaml:"earnings"`
	Schedule struct {
		ReconcileCron string `yaml:"reconcile_cron"`
		ReportCron    string `yaml:"report_cron"`
	} `yaml:"schedule"`
	TON struct {
		APIURL            string        `yaml:"api_url"`
		APIKey            string        `yaml:"api_key"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		CacheTTL          time.Duration `yaml:"cache_ttl"`
		ReceiverAddress   string        `yaml:"receiver_address"`
		TransferTTL       time.Duration `yaml:"transfer_ttl"`
	} `yaml:"ton"`
	Admin struct {
		SuperAdminIDs         []string `yaml:"super_admin_ids"`
		SuperAdminTelegramIDs []string `yaml:"super_admin_telegram_ids"`
	} `yaml:"admin"`
	Proxy string `yaml:"proxy"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = ParseCSV(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := firstEnv("BACKEND_URL", "SUPABASE_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := firstEnv("BACKEND_API_KEY", "SUPABASE_ANON_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if os.Getenv("DATABASE_RUN_MIGRATIONS") == "true" {
		cfg.Database.RunMigrations = true
	}
	if v := os.Getenv("LOCAL_STORE_DRIVER"); v != "" {
		cfg.Local.Driver = v
	}
	if v := os.Getenv("LOCAL_STORE_PATH"); v != "" {
		cfg.Local.Path = v
	}
	if v := os.Getenv("BASE_ROI"); v != "" {
		if roi, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Earnings.BaseROI = roi
		}
	}
	if v := os.Getenv("TON_API_URL"); v != "" {
		cfg.TON.APIURL = v
	}
	if v := os.Getenv("TON_API_KEY"); v != "" {
		cfg.TON.APIKey = v
	}
	if v := os.Getenv("TON_RECEIVER_ADDRESS"); v != "" {
		cfg.TON.ReceiverAddress = v
	}
	if v := firstEnv("SUPER_ADMIN_IDS", "VITE_SUPER_ADMIN_IDS"); v != "" {
		cfg.Admin.SuperAdminIDs = ParseCSV(v)
	}
	if v := firstEnv("SUPER_ADMIN_TELEGRAM_IDS", "VITE_SUPER_ADMIN_TELEGRAM_IDS"); v != "" {
		cfg.Admin.SuperAdminTelegramIDs = ParseCSV(v)
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 15 * time.Second
	}
	if cfg.Local.Driver == "" {
		cfg.Local.Driver = "sqlite"
	}
	if cfg.Local.Path == "" {
		switch cfg.Local.Driver {
		case "file":
			cfg.Local.Path = "data/local_state.json"
		default:
			cfg.Local.Path = "data/rhiza_local.db"
		}
	}
	if cfg.Earnings.BaseROI == 0 {
		cfg.Earnings.BaseROI = 0.0306
	}
	if cfg.Earnings.TickInterval == 0 {
		cfg.Earnings.TickInterval = time.Second
	}
	if cfg.Earnings.SyncInterval == 0 {
		cfg.Earnings.SyncInterval = time.Minute
	}
	if cfg.Earnings.SyncPeriod == 0 {
		cfg.Earnings.SyncPeriod = 5 * time.Minute
	}
	if cfg.Earnings.RateLimitWindow == 0 {
		cfg.Earnings.RateLimitWindow = time.Hour
	}
	if cfg.Earnings.MaxSyncsPerWindow == 0 {
		cfg.Earnings.MaxSyncsPerWindow = 12
	}
	if cfg.Earnings.ReconcileInterval == 0 {
		cfg.Earnings.ReconcileInterval = time.Hour
	}
	if cfg.Schedule.ReconcileCron == "" {
		cfg.Schedule.ReconcileCron = "0 30 * * * *"
	}
	if cfg.Schedule.ReportCron == "" {
		cfg.Schedule.ReportCron = "0 0 9 * * *"
	}
	if cfg.TON.APIURL == "" {
		cfg.TON.APIURL = "https://tonapi.io"
	}
	if cfg.TON.RequestsPerSecond == 0 {
		cfg.TON.RequestsPerSecond = 1
	}
	if cfg.TON.CacheTTL == 0 {
		cfg.TON.CacheTTL = 30 * time.Second
	}
	if cfg.TON.TransferTTL == 0 {
		cfg.TON.TransferTTL = 5 * time.Minute
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Local.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("local.driver must be one of sqlite, file, memory (got %q)", c.Local.Driver)
	}
	if c.Earnings.BaseROI <= 0 {
		return fmt.Errorf("earnings.base_roi must be positive")
	}
	if c.Earnings.TickInterval <= 0 || c.Earnings.SyncInterval <= 0 || c.Earnings.SyncPeriod <= 0 || c.Earnings.ReconcileInterval <= 0 {
		return fmt.Errorf("earnings intervals must be positive")
	}
	if c.Earnings.RateLimitWindow < c.Earnings.SyncInterval {
		return fmt.Errorf("earnings.rate_limit_window must be at least earnings.sync_interval")
	}
	if c.Earnings.MaxSyncsPerWindow <= 0 {
		return fmt.Errorf("earnings.max_syncs_per_window must be positive")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Backend.URL != "" && c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required when backend.url is set")
	}
	if c.TON.RequestsPerSecond < 0 {
		return fmt.Errorf("ton.requests_per_second must not be negative")
	}
	return nil
}

// ParseCSV splits a comma-separated list, trimming entries and dropping empty ones.
func ParseCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
