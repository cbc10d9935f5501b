package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	devSessionSecret = "warbler-dev-session-secret-change-me"
	devJWTSecret     = "warbler-dev-jwt-secret-change-me"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int
	DatabasePath string
	AppEnv       string
	LogLevel     string

	SessionSecret string
	SessionName   string
	SessionMaxAge time.Duration

	JWTSecret string
	TokenTTL  time.Duration

	AllowedOrigins []string

	EventRetention     time.Duration
	EventPruneSchedule string
	StatsInterval      time.Duration

	LoginRatePerMinute int
	// TrustProxyHeaders takes the client IP from X-Forwarded-For or X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	BackupPath     string
	BackupSchedule string
	BackupKeep     int
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	// Missing .env is fine; the process environment wins anyway.
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	sessionMaxAge, err := getDuration("SESSION_MAX_AGE", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := getDuration("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	retention, err := getDuration("EVENT_RETENTION", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	statsInterval, err := getDuration("STATS_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	loginRate, err := strconv.Atoi(getEnv("LOGIN_RATE_PER_MINUTE", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %w", err)
	}
	trustProxy, err := getBool("TRUST_PROXY_HEADERS", false)
	if err != nil {
		return nil, err
	}
	backupKeep, err := strconv.Atoi(getEnv("BACKUP_KEEP", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKUP_KEEP: %w", err)
	}

	cfg := &Config{
		ServerPort:         port,
		DatabasePath:       getEnv("DATABASE_PATH", "./warbler.db"),
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionName:        getEnv("SESSION_NAME", "warbler_session"),
		SessionMaxAge:      sessionMaxAge,
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           tokenTTL,
		AllowedOrigins:     splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		EventRetention:     retention,
		EventPruneSchedule: getEnv("EVENT_PRUNE_SCHEDULE", "@daily"),
		StatsInterval:      statsInterval,
		LoginRatePerMinute: loginRate,
		TrustProxyHeaders:  trustProxy,
		BackupPath:         getEnv("BACKUP_PATH", "./backups"),
		BackupSchedule:     getEnv("BACKUP_SCHEDULE", "@daily"),
		BackupKeep:         backupKeep,
	}

	if cfg.IsProduction() {
		if cfg.SessionSecret == "" {
			return nil, errors.New("SESSION_SECRET environment variable is required in production")
		}
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET environment variable is required in production")
		}
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = devSessionSecret
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

// String returns a printable form of the config with secrets masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, DB: %s, Env: %s, Secrets: ***}", c.ServerPort, c.DatabasePath, c.AppEnv)
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
