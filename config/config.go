package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DatabaseURL      string

	FeedsFile      string
	MaxConcurrency int
	RateLimitMs    int
	FeedTimeout    time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RunTimeout     time.Duration
	UserAgent      string

	SnapshotDir     string
	RedisURL        string
	CSVExport       bool
	CSVOutputPath   string
	CatalogJSONPath string

	ServerHost         string
	ServerPort         string
	GinMode            string
	CORSAllowedOrigins []string
	RefreshInterval    time.Duration

	LogLevel string
}

// Load reads the .env file if present and returns a populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	} else if err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "catalog"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "catalog"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),

		FeedsFile:      getEnv("FEEDS_FILE", "./feeds.yaml"),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),
		FeedTimeout:    getEnvDuration("FEED_TIMEOUT", 30*time.Second),
		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RunTimeout:     getEnvDuration("RUN_TIMEOUT", 5*time.Minute),
		UserAgent:      getEnv("USER_AGENT", "costa-catalog/1.0 (+feed-sync)"),

		SnapshotDir:     getEnv("SNAPSHOT_DIR", "./snapshots"),
		RedisURL:        getEnv("REDIS_URL", ""),
		CSVExport:       getEnvBool("CSV_EXPORT", true),
		CSVOutputPath:   getEnv("CSV_OUTPUT_PATH", "./output/properties.csv"),
		CatalogJSONPath: getEnv("CATALOG_JSON_PATH", "./output/catalog.json"),

		ServerHost:         getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		GinMode:            getEnv("GIN_MODE", "release"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RefreshInterval:    getEnvDuration("REFRESH_INTERVAL", 30*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxConcurrency < 1:
		return fmt.Errorf("config: MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	case c.MaxRetries < 0:
		return fmt.Errorf("config: MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	case c.FeedTimeout <= 0:
		return fmt.Errorf("config: FEED_TIMEOUT must be positive")
	case c.RunTimeout <= 0:
		return fmt.Errorf("config: RUN_TIMEOUT must be positive")
	case c.RefreshInterval < time.Minute:
		return fmt.Errorf("config: REFRESH_INTERVAL must be at least 1m, got %s", c.RefreshInterval)
	}
	return nil
}

// PostgresEnabled reports whether a database export is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != "" || c.PostgresHost != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ListenAddr is the host:port the API server binds to.
func (c *Config) ListenAddr() string {
	return c.ServerHost + ":" + c.ServerPort
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] Invalid %s=%q, using %d", key, val, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
		log.Printf("[config] Invalid %s=%q, using %s", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		log.Printf("[config] Invalid %s=%q, using %t", key, val, fallback)
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
