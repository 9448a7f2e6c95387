// Package config loads engine settings from defaults, an optional YAML file,
// an optional .env file and ENGINE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures the engine configuration.
type Config struct {
	HTTPPort            int            `yaml:"http_port"`
	Store               StoreConfig    `yaml:"store"`
	Timezone            string         `yaml:"timezone"`
	SlotGranularity     time.Duration  `yaml:"slot_granularity"`
	AvailabilityWorkers int            `yaml:"availability_workers"`
	NATS                NATSConfig     `yaml:"nats"`
	Dispatch            DispatchConfig `yaml:"dispatch"`
	Log                 LogConfig      `yaml:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NATSConfig configures booking notifications. An empty URL disables NATS.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DispatchConfig tunes side-effect retries.
type DispatchConfig struct {
	RetrySchedule string `yaml:"retry_schedule"`
	MaxAttempts   int    `yaml:"max_attempts"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a rotated copy of every log line.
	File string `yaml:"file"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPPort: 8080,
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/engine.db",
		},
		Timezone:            "UTC",
		SlotGranularity:     15 * time.Minute,
		AvailabilityWorkers: 4,
		NATS:                NATSConfig{SubjectPrefix: "engine.bookings"},
		Dispatch:            DispatchConfig{RetrySchedule: "@every 1m", MaxAttempts: 5},
		Log:                 LogConfig{Level: "info", Format: "text"},
	}
}

// Location resolves the configured business timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Loader reads configuration sources. Zero fields skip the matching source.
type Loader struct {
	// ConfigPath is a YAML file. A missing file is an error only when set explicitly.
	ConfigPath string
	// EnvFile is a dotenv file applied to the process environment when present.
	// Variables already set in the environment win.
	EnvFile string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load reads the YAML file at path (optional) and ./.env, then applies the environment.
func Load(path string) (Config, error) {
	return Loader{ConfigPath: path, EnvFile: ".env"}.Load()
}

// Load applies every source over Default and validates the result.
func (l Loader) Load() (Config, error) {
	cfg := Default()

	if l.ConfigPath != "" {
		data, err := os.ReadFile(l.ConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", l.ConfigPath, err)
		}
	}

	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", l.EnvFile, err)
		}
	}

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	invalid := make([]string, 0, 2)
	lookup := func(key string) (string, bool) {
		value := strings.TrimSpace(getenv(key))
		return value, value != ""
	}

	if value, ok := lookup("ENGINE_HTTP_PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ENGINE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if value, ok := lookup("ENGINE_STORE_DRIVER"); ok {
		cfg.Store.Driver = strings.ToLower(value)
	}
	if value, ok := lookup("ENGINE_STORE_SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = value
	}
	if value, ok := lookup("ENGINE_STORE_POSTGRES_DSN"); ok {
		cfg.Store.PostgresDSN = value
	}
	if value, ok := lookup("ENGINE_TIMEZONE"); ok {
		cfg.Timezone = value
	}
	if value, ok := lookup("ENGINE_SLOT_GRANULARITY"); ok {
		granularity, err := time.ParseDuration(value)
		if err != nil || granularity <= 0 {
			invalid = append(invalid, "ENGINE_SLOT_GRANULARITY")
		} else {
			cfg.SlotGranularity = granularity
		}
	}
	if value, ok := lookup("ENGINE_AVAILABILITY_WORKERS"); ok {
		workers, err := strconv.Atoi(value)
		if err != nil || workers <= 0 {
			invalid = append(invalid, "ENGINE_AVAILABILITY_WORKERS")
		} else {
			cfg.AvailabilityWorkers = workers
		}
	}
	if value, ok := lookup("ENGINE_NATS_URL"); ok {
		cfg.NATS.URL = value
	}
	if value, ok := lookup("ENGINE_NATS_SUBJECT_PREFIX"); ok {
		cfg.NATS.SubjectPrefix = value
	}
	if value, ok := lookup("ENGINE_DISPATCH_RETRY_SCHEDULE"); ok {
		cfg.Dispatch.RetrySchedule = value
	}
	if value, ok := lookup("ENGINE_DISPATCH_MAX_ATTEMPTS"); ok {
		attempts, err := strconv.Atoi(value)
		if err != nil || attempts <= 0 {
			invalid = append(invalid, "ENGINE_DISPATCH_MAX_ATTEMPTS")
		} else {
			cfg.Dispatch.MaxAttempts = attempts
		}
	}
	if value, ok := lookup("ENGINE_LOG_LEVEL"); ok {
		cfg.Log.Level = strings.ToLower(value)
	}
	if value, ok := lookup("ENGINE_LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(value)
	}
	if value, ok := lookup("ENGINE_LOG_FILE"); ok {
		cfg.Log.File = value
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Validate reports missing and malformed settings in one error.
func (c Config) Validate() error {
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if c.HTTPPort <= 0 {
		invalid = append(invalid, "http_port")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			missing = append(missing, "store.sqlite_path")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			missing = append(missing, "store.postgres_dsn")
		}
	case DriverMemory:
	default:
		invalid = append(invalid, "store.driver")
	}
	if _, err := c.Location(); err != nil {
		invalid = append(invalid, "timezone")
	}
	if c.SlotGranularity <= 0 {
		invalid = append(invalid, "slot_granularity")
	}
	if c.AvailabilityWorkers <= 0 {
		invalid = append(invalid, "availability_workers")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		invalid = append(invalid, "dispatch.max_attempts")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "log.level")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		invalid = append(invalid, "log.format")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required settings are missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("settings have invalid values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
