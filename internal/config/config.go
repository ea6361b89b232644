package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SignalSentinel/internal/collector"
	"SignalSentinel/internal/detector"
	"SignalSentinel/internal/logging"
	"SignalSentinel/internal/notifier"
	"SignalSentinel/internal/store"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		LogLevel string `yaml:"log_level"`
		LogFile  string `yaml:"log_file"`
		HTTPAddr string `yaml:"http_addr"`
	} `yaml:"app"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Polling  bool   `yaml:"polling"`
	} `yaml:"telegram"`
	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`
	Email struct {
		Host     string   `yaml:"host"`
		Port     int      `yaml:"port"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		From     string   `yaml:"from"`
		To       []string `yaml:"to"`
	} `yaml:"email"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	DataSource struct {
		Name           string   `yaml:"name"`
		BaseURL        string   `yaml:"base_url"`
		APIKey         string   `yaml:"api_key"`
		Symbols        []string `yaml:"symbols"`
		RequestDelayMS int      `yaml:"request_delay_ms"`
	} `yaml:"data_source"`
	Schedule struct {
		DailyCron    string `yaml:"daily_cron"`
		GapFillCron  string `yaml:"gap_fill_cron"`
		IntradayCron string `yaml:"intraday_cron"`
		PruneCron    string `yaml:"prune_cron"`
	} `yaml:"schedule"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Analysis struct {
		MAPeriods        []int   `yaml:"ma_periods"`
		CrossShort       int     `yaml:"cross_short"`
		CrossLong        int     `yaml:"cross_long"`
		MinHistory       int     `yaml:"min_history"`
		LookbackDays     int     `yaml:"lookback_days"`
		FetchWindowDays  int     `yaml:"fetch_window_days"`
		TouchBand        float64 `yaml:"touch_band"`
		GapFillSignals   bool    `yaml:"gap_fill_signals"`
		RetentionDays    int     `yaml:"retention_days"`
		SignalRetention  int     `yaml:"signal_retention_days"`
		IntradayInterval string  `yaml:"intraday_interval"`
	} `yaml:"analysis"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads .env (if present), then the YAML file, then applies
// environment variable overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

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

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.App.LogLevel, "LOG_LEVEL")
	setString(&c.App.LogFile, "LOG_FILE")
	setString(&c.App.HTTPAddr, "HTTP_ADDR")
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setString(&c.Webhook.URL, "WEBHOOK_URL")
	setString(&c.Email.Host, "SMTP_HOST")
	setString(&c.Email.Username, "SMTP_USERNAME")
	setString(&c.Email.Password, "SMTP_PASSWORD")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.DataSource.Name, "DATA_SOURCE")
	setString(&c.DataSource.BaseURL, "DATA_SOURCE_BASE_URL")
	setString(&c.DataSource.APIKey, "DATA_SOURCE_API_KEY")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Database.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Proxy, "HTTPS_PROXY")
	setString(&c.Schedule.DailyCron, "CRON_DAILY")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Email.Port = port
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.DataSource.Symbols = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "SignalSentinel"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 5 * time.Minute
	}
	if c.DataSource.Name == "" {
		c.DataSource.Name = "yahoo"
	}
	if c.DataSource.RequestDelayMS == 0 {
		c.DataSource.RequestDelayMS = 1000
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 22 * * 1-5"
	}
	if c.Schedule.GapFillCron == "" {
		c.Schedule.GapFillCron = "0 0 6 * * 6"
	}
	if c.Schedule.PruneCron == "" {
		c.Schedule.PruneCron = "0 0 3 1 * *"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverSQLite
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/signal_sentinel.db"
	}

	a := &c.Analysis
	def := detector.DefaultConfig()
	if len(a.MAPeriods) == 0 {
		a.MAPeriods = def.MAPeriods
	}
	if a.CrossShort == 0 {
		a.CrossShort = def.CrossShort
	}
	if a.CrossLong == 0 {
		a.CrossLong = def.CrossLong
	}
	if a.TouchBand == 0 {
		a.TouchBand = def.TouchBand
	}
	if a.MinHistory == 0 {
		a.MinHistory = 200
	}
	if a.LookbackDays == 0 {
		a.LookbackDays = 365
	}
	if a.FetchWindowDays == 0 {
		a.FetchWindowDays = 10
	}
	if a.RetentionDays == 0 {
		a.RetentionDays = 3650
	}
	if a.IntradayInterval == "" {
		a.IntradayInterval = "15m"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if len(c.DataSource.Symbols) == 0 {
		return fmt.Errorf("data_source.symbols is required")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when bot_token is set")
	}
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverMemory:
	case store.DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.DataSource.Name == "rest" && c.DataSource.BaseURL == "" {
		return fmt.Errorf("data_source.base_url is required for the rest source")
	}
	if c.Analysis.MinHistory <= 0 || c.Analysis.LookbackDays <= 0 || c.Analysis.FetchWindowDays <= 0 {
		return fmt.Errorf("analysis windows must be positive")
	}
	if c.Analysis.RetentionDays < 0 || c.Analysis.SignalRetention < 0 {
		return fmt.Errorf("analysis retention days must not be negative")
	}
	if err := c.Detector().Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}

// Detector returns the indicator engine configuration.
func (c *Config) Detector() detector.Config {
	d := detector.DefaultConfig()
	d.MAPeriods = c.Analysis.MAPeriods
	d.CrossShort = c.Analysis.CrossShort
	d.CrossLong = c.Analysis.CrossLong
	d.TouchBand = c.Analysis.TouchBand
	return d
}

// Store returns the storage options.
func (c *Config) Store() store.Options {
	return store.Options{
		Driver:      c.Database.Driver,
		SQLitePath:  c.Database.SQLitePath,
		PostgresDSN: c.Database.PostgresDSN,
	}
}

// Source returns the price source settings.
func (c *Config) Source() collector.Source {
	return collector.Source{
		Name:     c.DataSource.Name,
		BaseURL:  c.DataSource.BaseURL,
		APIKey:   c.DataSource.APIKey,
		ProxyURL: c.Proxy,
	}
}

// Logging returns the logger options.
func (c *Config) Logging() logging.Options {
	return logging.Options{Level: c.App.LogLevel, File: c.App.LogFile}
}

// EmailConfig returns SMTP settings, or nil when email is not configured.
func (c *Config) EmailConfig() *notifier.EmailConfig {
	if c.Email.Host == "" {
		return nil
	}
	return &notifier.EmailConfig{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
		To:       c.Email.To,
	}
}

// RequestDelay is the pause between consecutive source requests.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.DataSource.RequestDelayMS) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
