package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration. Policy settings (threshold,
// schedule, notification channels) live in the settings table and are
// loaded per reconciliation pass, not here.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	LogLevel  string
	LogFormat string

	DBPath string

	HTTPAddr string

	// TriggerKey guards the HTTP cron trigger. An empty key disables
	// the endpoint entirely; the run-once binary needs no key.
	TriggerKey string

	// RunInterval is the cadence of the background pass driver.
	RunInterval time.Duration

	// JournalRetention bounds the append-only journal table.
	JournalRetention time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:          getenv("APP_SERVICE", "trafficwarden"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      getenv("ENVIRONMENT", "development"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "json"),
		DBPath:           getenv("DATABASE_PATH", "data/trafficwarden.sqlite"),
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		TriggerKey:       strings.TrimSpace(getenv("MONITOR_TRIGGER_KEY", "")),
		RunInterval:      getenvDuration("MONITOR_RUN_INTERVAL", time.Minute),
		JournalRetention: getenvDuration("JOURNAL_RETENTION", 30*24*time.Hour),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
