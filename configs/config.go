package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries server settings plus the privacy policy flags consumed by
// the view recorder and the lifecycle manager. Policy flags are read-only
// from the engine's point of view.
type Config struct {
	ServerPort       string
	DatabaseURL      string
	RedisURL         string
	JWTSecret        string
	JWTTTL           time.Duration
	RateLimitPerHour int
	CacheTTL         time.Duration

	// Privacy policy flags.
	TrackIP            bool
	AnonymizeIP        bool
	TrackUserAgent     bool
	AllowDataExport    bool
	AllowDataDeletion  bool
	LogRetentionDays   int
	AutoCleanupEnabled bool
	CleanupInterval    time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", "root:password@tcp(localhost:3306)/secure_video?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTTTL:           parseDuration(getEnv("JWT_TTL", "24h")),
		RateLimitPerHour: parseInt(getEnv("RATE_LIMIT_PER_HOUR", "1000")),
		CacheTTL:         parseDuration(getEnv("CACHE_TTL", "1h")),

		TrackIP:            parseBool(getEnv("TRACK_IP", "true")),
		AnonymizeIP:        parseBool(getEnv("ANONYMIZE_IP", "false")),
		TrackUserAgent:     parseBool(getEnv("TRACK_USER_AGENT", "false")),
		AllowDataExport:    parseBool(getEnv("ALLOW_DATA_EXPORT", "true")),
		AllowDataDeletion:  parseBool(getEnv("ALLOW_DATA_DELETION", "true")),
		LogRetentionDays:   parseInt(getEnv("LOG_RETENTION_DAYS", "365")),
		AutoCleanupEnabled: parseBool(getEnv("AUTO_CLEANUP_ENABLED", "true")),
		CleanupInterval:    parseDuration(getEnv("CLEANUP_INTERVAL", "24h")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("LOG_RETENTION_DAYS must not be negative")
	}
	if c.RateLimitPerHour <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_HOUR must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Hour
	}
	return d
}
