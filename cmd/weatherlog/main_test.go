package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/weatherlog/internal/config"
	"github.com/lox/weatherlog/internal/store"
)

const clearBody = `{"main":{"temp":5.0,"pressure":1013.0},"wind":{"deg":"90","speed":3.2},"weather":[{"main":"Clear"}]}`

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func parseArgs(t *testing.T, args ...string) (CLI, error) {
	t.Helper()
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	_, err = parser.Parse(args)
	return cli, err
}

func TestParseFlags(t *testing.T) {
	envFile := writeEnvFile(t, "")

	tests := []struct {
		name       string
		args       []string
		wantExport string
		wantOnce   bool
		wantErr    bool
	}{
		{name: "no flags", args: []string{"--env-file", envFile}},
		{name: "export", args: []string{"--export", "out.xlsx", "--env-file", envFile}, wantExport: "out.xlsx"},
		{name: "export ftp", args: []string{"--export=ftp://host/w.xlsx", "--env-file", envFile}, wantExport: "ftp://host/w.xlsx"},
		{name: "once", args: []string{"--once", "--env-file", envFile}, wantOnce: true},
		{name: "config is not a flag", args: []string{"--db-url", "sqlite://", "--env-file", envFile}, wantErr: true},
		{name: "interval is not a flag", args: []string{"--poll-interval", "1s", "--env-file", envFile}, wantErr: true},
		{name: "positional rejected", args: []string{"weather.xlsx", "--env-file", envFile}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, err := parseArgs(t, tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%v) = %+v, want error", tt.args, cli)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v): %v", tt.args, err)
			}
			if cli.Export != tt.wantExport {
				t.Errorf("Export = %q, want %q", cli.Export, tt.wantExport)
			}
			if cli.Once != tt.wantOnce {
				t.Errorf("Once = %v, want %v", cli.Once, tt.wantOnce)
			}
		})
	}
}

func TestEnvFileFeedsConfig(t *testing.T) {
	t.Setenv("OPENWEATHER_LOCATION", "")
	os.Unsetenv("OPENWEATHER_LOCATION")
	t.Setenv("EXPORT_LIMIT", "")
	os.Unsetenv("EXPORT_LIMIT")

	envFile := writeEnvFile(t, "OPENWEATHER_LOCATION=Moscow,ru\nEXPORT_LIMIT=5\n")
	if _, err := parseArgs(t, "--env-file", envFile); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if cfg.Location != "Moscow,ru" {
		t.Errorf("Location = %q, want Moscow,ru", cfg.Location)
	}
	if cfg.ExportLimit != 5 {
		t.Errorf("ExportLimit = %d, want 5", cfg.ExportLimit)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, handler http.HandlerFunc) (config.Config, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dbPath := filepath.Join(t.TempDir(), "weather.db")
	cfg := config.Default()
	cfg.DBURL = "sqlite:///" + dbPath
	cfg.APIURL = srv.URL + "/data/2.5/weather"
	cfg.APIKey = "test-key"
	return cfg, cfg.DBURL
}

func countRows(t *testing.T, dbURL string) int64 {
	t.Helper()
	st, err := store.Open(context.Background(), dbURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	n, err := st.CountObservations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunOnceStoresAndExports(t *testing.T) {
	cfg, dbURL := testConfig(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(clearBody))
	})
	exportPath := filepath.Join(t.TempDir(), "weather.xlsx")

	if err := run(context.Background(), CLI{Export: exportPath, Once: true}, cfg, testLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if n := countRows(t, dbURL); n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Errorf("export file: %v", err)
	}
}

func TestRunOnceFetchFailureIsNotFatal(t *testing.T) {
	cfg, dbURL := testConfig(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod":401}`, http.StatusUnauthorized)
	})
	exportPath := filepath.Join(t.TempDir(), "weather.xlsx")

	if err := run(context.Background(), CLI{Export: exportPath, Once: true}, cfg, testLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if n := countRows(t, dbURL); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if _, err := os.Stat(exportPath); !os.IsNotExist(err) {
		t.Errorf("export file written after failed fetch (stat err %v)", err)
	}
}

func TestRunRejectsBadExportDestination(t *testing.T) {
	cfg, _ := testConfig(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if err := run(context.Background(), CLI{Export: "ftp:///weather.xlsx", Once: true}, cfg, testLogger()); err == nil {
		t.Fatal("run = nil, want destination error")
	}
}

func TestRunRejectsUnknownDatabase(t *testing.T) {
	cfg, _ := testConfig(t, func(w http.ResponseWriter, r *http.Request) {})
	cfg.DBURL = "mysql://localhost/weather"

	if err := run(context.Background(), CLI{Once: true}, cfg, testLogger()); err == nil {
		t.Fatal("run = nil, want error")
	}
}
