package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Schedule.DailyCron != "0 30 22 * * 1-5" {
		t.Errorf("daily cron = %q", cfg.Schedule.DailyCron)
	}
	a := cfg.Analysis
	if a.MinHistory != 200 || a.LookbackDays != 365 || a.FetchWindowDays != 10 {
		t.Errorf("analysis defaults = %+v", a)
	}
	if len(a.MAPeriods) != 3 || a.CrossShort != 50 || a.CrossLong != 200 || a.TouchBand != 0.01 {
		t.Errorf("detector defaults = %+v", a)
	}
	if a.GapFillSignals {
		t.Error("gap fill signals should default to off")
	}
	if cfg.RequestDelay() != time.Second {
		t.Errorf("request delay = %v", cfg.RequestDelay())
	}
	if cfg.EmailConfig() != nil {
		t.Error("email should be unset by default")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
data_source:
  name: rest
  base_url: http://prices.local
  symbols: [AAPL, MSFT]
redis:
  lock_ttl: 2m
database:
  driver: memory
analysis:
  ma_periods: [10, 30]
  gap_fill_signals: true
email:
  host: smtp.local
  from: a@b.c
  to: [x@y.z]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.App.LogLevel != "debug" || cfg.Database.Driver != "memory" {
		t.Errorf("unexpected app/database: %+v %+v", cfg.App, cfg.Database)
	}
	if len(cfg.DataSource.Symbols) != 2 || cfg.DataSource.Symbols[1] != "MSFT" {
		t.Errorf("symbols = %v", cfg.DataSource.Symbols)
	}
	if cfg.Redis.LockTTL != 2*time.Minute {
		t.Errorf("lock ttl = %v", cfg.Redis.LockTTL)
	}
	if d := cfg.Detector(); len(d.MAPeriods) != 2 || d.MAPeriods[0] != 10 {
		t.Errorf("detector periods = %v", d.MAPeriods)
	}
	if !cfg.Analysis.GapFillSignals {
		t.Error("gap_fill_signals not parsed")
	}
	if e := cfg.EmailConfig(); e == nil || e.Host != "smtp.local" || len(e.To) != 1 {
		t.Errorf("email config = %+v", e)
	}
	if src := cfg.Source(); src.Name != "rest" || src.BaseURL != "http://prices.local" {
		t.Errorf("source = %+v", src)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SPY, QQQ ,")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "1")

	cfg, err := Load(writeConfig(t, "data_source:\n  symbols: [AAPL]\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DataSource.Symbols) != 2 || cfg.DataSource.Symbols[0] != "SPY" || cfg.DataSource.Symbols[1] != "QQQ" {
		t.Errorf("symbols = %v", cfg.DataSource.Symbols)
	}
	if cfg.Database.Driver != "memory" || cfg.Telegram.BotToken != "tok" {
		t.Errorf("env not applied: %+v %+v", cfg.Database, cfg.Telegram)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.DataSource.Symbols = nil }},
		{"token without chat", func(c *Config) { c.Telegram.BotToken = "x"; c.Telegram.ChatID = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"rest without url", func(c *Config) { c.DataSource.Name = "rest"; c.DataSource.BaseURL = "" }},
		{"bad cross", func(c *Config) { c.Analysis.CrossShort = 200; c.Analysis.CrossLong = 50 }},
		{"bad touch band", func(c *Config) { c.Analysis.TouchBand = 2 }},
		{"negative retention", func(c *Config) { c.Analysis.RetentionDays = -1 }},
		{"negative signal retention", func(c *Config) { c.Analysis.SignalRetention = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			cfg.DataSource.Symbols = []string{"AAPL"}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline Validate: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
