package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultMatchesFixedValues(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PollInterval != 180*time.Second {
		t.Errorf("PollInterval = %s, want 3m0s", cfg.PollInterval)
	}
	if cfg.ExportLimit != 10 {
		t.Errorf("ExportLimit = %d, want 10", cfg.ExportLimit)
	}
	if cfg.DBURL != "sqlite:///weather.db" {
		t.Errorf("DBURL = %q", cfg.DBURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "bad app env", mutate: func(c *Config) { c.AppEnv = "staging" }, wantErr: "APP_ENV"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "LOG_LEVEL"},
		{name: "empty db url", mutate: func(c *Config) { c.DBURL = " " }, wantErr: "DB_URL"},
		{name: "relative api url", mutate: func(c *Config) { c.APIURL = "/weather" }, wantErr: "OPENWEATHER_API_URL"},
		{name: "empty location", mutate: func(c *Config) { c.Location = "" }, wantErr: "OPENWEATHER_LOCATION"},
		{name: "zero interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "POLL_INTERVAL"},
		{name: "negative limit", mutate: func(c *Config) { c.ExportLimit = -1 }, wantErr: "EXPORT_LIMIT"},
		{name: "prod ok", mutate: func(c *Config) { c.AppEnv = "prod" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Fatalf("ParseLogLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_URL", "postgres://weather:secret@db:5432/weather")
	t.Setenv("OPENWEATHER_API_KEY", "abc123")
	t.Setenv("POLL_INTERVAL", "45s")
	t.Setenv("EXPORT_LIMIT", "25")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.DBURL = "postgres://weather:secret@db:5432/weather"
	want.APIKey = "abc123"
	want.PollInterval = 45 * time.Second
	want.ExportLimit = 25
	want.AppEnv = "prod"
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoadDefaultsMatchDefault(t *testing.T) {
	for _, key := range []string{"DB_URL", "OPENWEATHER_API_URL", "OPENWEATHER_API_KEY", "OPENWEATHER_LOCATION",
		"OPENWEATHER_LANG", "POLL_INTERVAL", "EXPORT_LIMIT", "APP_ENV", "LOG_LEVEL", "METRICS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want %+v", cfg, Default())
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "0s")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "POLL_INTERVAL") {
		t.Fatalf("Load = %v, want error mentioning POLL_INTERVAL", err)
	}
}
