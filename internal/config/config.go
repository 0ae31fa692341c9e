package config

import (
	"os"
	"time"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	Port          string
	Env           string
	MongoURI      string
	MongoDatabase string
	RedisURL      string
	LogLevel      string
	LogFormat     string

	// SweepSchedule is a cron expression for the periodic consistency sweep.
	SweepSchedule string

	// WebhookDedupTTL bounds how long a delivered event id is remembered.
	// It should cover the identity provider's redelivery horizon.
	WebhookDedupTTL time.Duration

	// StepTimeout bounds each individual cascade step against the store.
	StepTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		Env:             getEnvWithDefault("ENV", "development"),
		MongoURI:        getEnvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnvWithDefault("MONGODB_DATABASE", "marketplace"),
		RedisURL:        getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvWithDefault("LOG_FORMAT", "text"),
		SweepSchedule:   getEnvWithDefault("SWEEP_SCHEDULE", "@hourly"),
		WebhookDedupTTL: getDurationWithDefault("WEBHOOK_DEDUP_TTL", 24*time.Hour),
		StepTimeout:     getDurationWithDefault("CASCADE_STEP_TIMEOUT", 10*time.Second),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
