// Package config loads application settings from environment variables,
// optionally seeded from a .env file, applying defaults and validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// RedisConfig holds connection settings for the shared cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	GinMode           string // debug|release|test
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	AllowedOrigins    []string

	// TrustedProxies lists the proxy IPs/CIDRs whose X-Forwarded-For is
	// believed. Empty means the client IP is always the peer address.
	TrustedProxies []string

	// Logging
	LogLevel  string
	LogPretty bool

	// Storage
	DBPath string

	// Cache
	CacheBackend string
	CacheTTL     time.Duration
	Redis        RedisConfig

	// Sessions
	SessionTTL   time.Duration
	CookieSecure bool
	BcryptCost   int

	// AuthRateRPS limits /auth/register and /auth/login per client IP.
	// Zero disables the limiter.
	AuthRateRPS   float64
	AuthRateBurst int

	// Background tasks
	TaskWorkers   int
	TaskQueueSize int

	// Seeding
	SeedAdmin bool
	SeedCSV   string
}

// Load reads an optional .env file (ENV_FILE, default ".env"), then the
// process environment, applies defaults and validates the result.
// Variables already present in the environment win over the file.
func Load() (Config, error) {
	envFile := getenv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Port:              getenv("PORT", "8008"),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:    splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		TrustedProxies:    splitCSV(getenv("TRUSTED_PROXIES", "")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath: getenv("DB_PATH", "students.db"),

		CacheBackend: strings.ToLower(getenv("CACHE_BACKEND", CacheBackendMemory)),
		CacheTTL:     getdur("CACHE_TTL", 300*time.Second),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		SessionTTL:   getdur("SESSION_TTL", 24*time.Hour),
		CookieSecure: getbool("COOKIE_SECURE", false),
		BcryptCost:   getint("BCRYPT_COST", 10),

		AuthRateRPS:   getfloat("AUTH_RATE_RPS", 5),
		AuthRateBurst: getint("AUTH_RATE_BURST", 10),

		TaskWorkers:   getint("TASK_WORKERS", 2),
		TaskQueueSize: getint("TASK_QUEUE_SIZE", 64),

		SeedAdmin: getbool("SEED_ADMIN", true),
		SeedCSV:   getenv("SEED_CSV", "students.csv"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	for _, p := range cfg.TrustedProxies {
		if !validProxy(p) {
			return cfg, fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
		}
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	switch cfg.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return cfg, errors.New("REDIS_ADDR must not be empty when CACHE_BACKEND=redis")
		}
	default:
		return cfg, errors.New("CACHE_BACKEND must be one of: memory, redis")
	}
	if cfg.CacheTTL <= 0 {
		return cfg, errors.New("CACHE_TTL must be > 0")
	}
	if cfg.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if cfg.AuthRateRPS < 0 {
		return cfg, errors.New("AUTH_RATE_RPS must be >= 0")
	}
	if cfg.TaskWorkers < 1 {
		return cfg, errors.New("TASK_WORKERS must be >= 1")
	}
	if cfg.TaskQueueSize < 1 {
		return cfg, errors.New("TASK_QUEUE_SIZE must be >= 1")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
