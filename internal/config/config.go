// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration values for the waiver worker and CLI.
type Config struct {
	// Storage
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
	SeedFile      string

	// HTTP
	HTTPAddr string

	// Scheduling
	PollInterval time.Duration
	SweepHour    int

	// Engine tuning
	ExpiryGrace    time.Duration
	LeaseTTL       time.Duration
	RunWorkers     int
	LeagueCacheTTL time.Duration

	// Reporting
	ReportMaxElapsed  time.Duration
	DiscordWebhookURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present; real environment wins.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:     os.Getenv("CLICKHOUSE_DSN"),
		SeedFile:          os.Getenv("SEED_FILE"),
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8080"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.UseMemory, err = parseBool("USE_MEMORY", false); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepHour, err = parseInt("SWEEP_HOUR", 4); err != nil {
		return nil, err
	}
	if cfg.ExpiryGrace, err = parseDuration("EXPIRY_GRACE", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = parseDuration("LEASE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RunWorkers, err = parseInt("RUN_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.LeagueCacheTTL, err = parseDuration("LEAGUE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReportMaxElapsed, err = parseDuration("REPORT_MAX_ELAPSED", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the combination of values after flags have been applied.
func (c *Config) Validate() error {
	var errs []error
	if !c.UseMemory {
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required (or set USE_MEMORY=true)"))
		}
		if c.ClickhouseDSN == "" {
			errs = append(errs, errors.New("CLICKHOUSE_DSN is required (or set USE_MEMORY=true)"))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.SweepHour < 0 || c.SweepHour > 23 {
		errs = append(errs, fmt.Errorf("SWEEP_HOUR must be 0-23, got %d", c.SweepHour))
	}
	if c.ExpiryGrace < 0 {
		errs = append(errs, fmt.Errorf("EXPIRY_GRACE must not be negative, got %s", c.ExpiryGrace))
	}
	if c.RunWorkers <= 0 {
		errs = append(errs, fmt.Errorf("RUN_WORKERS must be positive, got %d", c.RunWorkers))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
