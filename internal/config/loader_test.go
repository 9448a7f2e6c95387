package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Loader{Getenv: envMap(nil)}.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.Store.SQLitePath != "data/engine.db" {
		t.Fatalf("unexpected default store: %+v", cfg.Store)
	}
	if cfg.SlotGranularity != 15*time.Minute {
		t.Fatalf("expected 15m granularity, got %s", cfg.SlotGranularity)
	}
	if cfg.Dispatch.RetrySchedule != "@every 1m" || cfg.Dispatch.MaxAttempts != 5 {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
}

func TestLoader_YAMLThenEnvironment(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "engine.yaml", `
http_port: 9000
timezone: Europe/Berlin
slot_granularity: 30m
store:
  driver: postgres
  postgres_dsn: postgres://engine@localhost/engine
nats:
  url: nats://localhost:4222
log:
  level: debug
  format: json
`)

	cfg, err := Loader{ConfigPath: path, Getenv: envMap(map[string]string{
		"ENGINE_HTTP_PORT":            "9090",
		"ENGINE_AVAILABILITY_WORKERS": "8",
		"ENGINE_NATS_SUBJECT_PREFIX":  "salon",
	})}.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Fatalf("environment must override the file, got port %d", cfg.HTTPPort)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.PostgresDSN == "" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.SlotGranularity != 30*time.Minute {
		t.Fatalf("expected 30m granularity, got %s", cfg.SlotGranularity)
	}
	if cfg.AvailabilityWorkers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.AvailabilityWorkers)
	}
	if cfg.NATS.URL != "nats://localhost:4222" || cfg.NATS.SubjectPrefix != "salon" {
		t.Fatalf("unexpected NATS config: %+v", cfg.NATS)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Fatalf("expected Europe/Berlin, got %v (%v)", loc, err)
	}
}

func TestLoader_EnvFile(t *testing.T) {
	const key = "ENGINE_DISPATCH_RETRY_SCHEDULE"
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset %s: %v", key, err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=@every 30s\n")
	cfg, err := Loader{EnvFile: path}.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Dispatch.RetrySchedule != "@every 30s" {
		t.Fatalf("expected schedule from .env, got %q", cfg.Dispatch.RetrySchedule)
	}

	missing := filepath.Join(t.TempDir(), "absent.env")
	if _, err := (Loader{EnvFile: missing}).Load(); err != nil {
		t.Fatalf("a missing env file must be ignored: %v", err)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		env    map[string]string
		expect string
	}{
		{
			name:   "invalid numbers",
			env:    map[string]string{"ENGINE_HTTP_PORT": "http", "ENGINE_SLOT_GRANULARITY": "-5m"},
			expect: "invalid environment values: ENGINE_HTTP_PORT, ENGINE_SLOT_GRANULARITY",
		},
		{
			name:   "postgres without dsn",
			env:    map[string]string{"ENGINE_STORE_DRIVER": "postgres"},
			expect: "required settings are missing: store.postgres_dsn",
		},
		{
			name:   "unknown driver and timezone",
			env:    map[string]string{"ENGINE_STORE_DRIVER": "mongo", "ENGINE_TIMEZONE": "Mars/Olympus"},
			expect: "settings have invalid values: store.driver, timezone",
		},
		{
			name:   "bad log format",
			env:    map[string]string{"ENGINE_LOG_FORMAT": "xml"},
			expect: "settings have invalid values: log.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Loader{Getenv: envMap(tc.env)}.Load()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if err.Error() != tc.expect {
				t.Fatalf("unexpected error message: %q", err.Error())
			}
		})
	}

	_, err := Loader{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Getenv: envMap(nil)}.Load()
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("expected read error for an explicit missing file, got %v", err)
	}
}
