package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds the daemon configuration, read from the environment. The
// housekeeping keys keep the names the deployment platform already uses.
type Config struct {
	DatabaseDSN string

	EventBus     string // "nats" or "memory"
	NATSURL      string
	NATSEmbedded bool
	NATSStoreDir string

	ExpiryDuration      time.Duration
	SweeperInitialDelay time.Duration
	SweeperInterval     time.Duration
	CacheTTL            time.Duration
	CacheCleanInterval  time.Duration

	LogLevel slog.Level
}

// LoadConfig reads configuration from the environment, falling back to
// defaults for anything unset.
func LoadConfig() Config {
	return Config{
		DatabaseDSN: envString("NOTIFICATION_DB_DSN", "notification.db"),

		EventBus:     envString("NOTIFICATION_EVENT_BUS", "nats"),
		NATSURL:      envString("NATS_URL", "nats://127.0.0.1:4222"),
		NATSEmbedded: envBool("NATS_EMBEDDED", false),
		NATSStoreDir: envString("NATS_STORE_DIR", "nats-data"),

		ExpiryDuration:      envSeconds("subscription_expiry_duration_seconds", 28800),
		SweeperInitialDelay: envMillis("subscriptionCleanerScheduleInitialDelayInMillis", 600000),
		SweeperInterval:     envMillis("subscriptionCleanerScheduleIntervalInMillis", 600000),
		CacheTTL:            envSeconds("eventCacheCleanerTimeToLiveSeconds", 3600),
		CacheCleanInterval:  envMillis("eventCacheCleanerScheduleIntervalInMillis", 600000),

		LogLevel: envLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envSeconds(key string, fallback int64) time.Duration {
	return time.Duration(envInt64(key, fallback)) * time.Second
}

func envMillis(key string, fallback int64) time.Duration {
	return time.Duration(envInt64(key, fallback)) * time.Millisecond
}

func envLogLevel(key string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return level
}
