package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Upstream struct {
		ChartURL        string        `yaml:"chart_url"`
		SearchURL       string        `yaml:"search_url"`
		UserAgent       string        `yaml:"user_agent"`
		Timeout         time.Duration `yaml:"timeout"`
		Attempts        int           `yaml:"attempts"`
		Backoff         time.Duration `yaml:"backoff"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"upstream"`
	Sync struct {
		RequestDelayMS  int           `yaml:"request_delay_ms"`
		Symbols         string        `yaml:"symbols"` // comma-separated; empty or "full" means all
		Workers         int           `yaml:"workers"`
		BatchSize       int           `yaml:"batch_size"`
		OnDemandTimeout time.Duration `yaml:"on_demand_timeout"`
		GraceDays       int           `yaml:"grace_days"`
		HistoryFloor    string        `yaml:"history_floor"`
		SessionClose    time.Duration `yaml:"session_close"` // UTC time of day; 0 treats today as complete
		AliasEvictAfter int           `yaml:"alias_evict_after"`
	} `yaml:"sync"`
	Schedule struct {
		Enabled      bool   `yaml:"enabled"`
		DailyCron    string `yaml:"daily_cron"`
		RunOnStart   bool   `yaml:"run_on_start"`
		SkipWeekends bool   `yaml:"skip_weekends"`
	} `yaml:"schedule"`
	Database struct {
		Driver       string        `yaml:"driver"`
		SQLitePath   string        `yaml:"sqlite_path"`
		PostgresDSN  string        `yaml:"postgres_dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		QueryTimeout time.Duration `yaml:"query_timeout"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"` // empty keeps aliases in memory only
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Key      string `yaml:"key"`
	} `yaml:"redis"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}

	cfg.Upstream.ChartURL = "https://query2.finance.yahoo.com/v8/finance/chart"
	cfg.Upstream.SearchURL = "https://query2.finance.yahoo.com/v1/finance/search"
	cfg.Upstream.Timeout = 30 * time.Second
	cfg.Upstream.Attempts = 4
	cfg.Upstream.Backoff = 800 * time.Millisecond
	cfg.Upstream.BreakerFailures = 5
	cfg.Upstream.BreakerCooldown = time.Minute

	cfg.Sync.RequestDelayMS = 800
	cfg.Sync.Workers = 1
	cfg.Sync.BatchSize = 5000
	cfg.Sync.OnDemandTimeout = 20 * time.Second
	cfg.Sync.GraceDays = 7
	cfg.Sync.HistoryFloor = "1990-01-01"
	cfg.Sync.SessionClose = 21 * time.Hour
	cfg.Sync.AliasEvictAfter = 3

	cfg.Schedule.Enabled = true
	cfg.Schedule.DailyCron = "0 0 0 * * *"
	cfg.Schedule.RunOnStart = true
	cfg.Schedule.SkipWeekends = true

	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = "data/pricesync.db"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.QueryTimeout = 30 * time.Second

	cfg.Redis.Key = "pricesync:aliases"
	cfg.Server.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"YAHOO_SYMBOLS":      &c.Sync.Symbols,
		"YAHOO_USER_AGENT":   &c.Upstream.UserAgent,
		"CRON_DAILY":         &c.Schedule.DailyCron,
		"DB_DRIVER":          &c.Database.Driver,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"POSTGRES_DSN":       &c.Database.PostgresDSN,
		"REDIS_ADDR":         &c.Redis.Addr,
		"REDIS_PASSWORD":     &c.Redis.Password,
		"HTTP_ADDR":          &c.Server.Addr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"YAHOO_REQUEST_DELAY_MS": &c.Sync.RequestDelayMS,
		"YAHOO_WORKERS":          &c.Sync.Workers,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env RUN_ON_START: %w", err)
		}
		c.Schedule.RunOnStart = b
	}
	return nil
}

// RequestDelay is the minimum spacing between symbol fetches in bulk runs.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Sync.RequestDelayMS) * time.Millisecond
}

// Floor parses the history floor date.
func (c *Config) Floor() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", c.Sync.HistoryFloor, time.UTC)
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", c.Database.Driver)
	}
	if c.Sync.RequestDelayMS < 0 {
		return fmt.Errorf("sync.request_delay_ms must not be negative")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if c.Sync.GraceDays < 0 {
		return fmt.Errorf("sync.grace_days must not be negative")
	}
	if c.Sync.SessionClose < 0 || c.Sync.SessionClose >= 24*time.Hour {
		return fmt.Errorf("sync.session_close must be within [0, 24h)")
	}
	if c.Sync.AliasEvictAfter < 0 {
		return fmt.Errorf("sync.alias_evict_after must not be negative")
	}
	if _, err := c.Floor(); err != nil {
		return fmt.Errorf("sync.history_floor: %w", err)
	}
	if c.Upstream.Attempts < 1 {
		return fmt.Errorf("upstream.attempts must be at least 1")
	}
	if c.Schedule.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule.DailyCron); err != nil {
			return fmt.Errorf("schedule.daily_cron: %w", err)
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
