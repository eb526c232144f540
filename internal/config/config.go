// Package config loads application configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  Required variables are
// enforced by must(); everything else has a sensible default so a
// memory-store instance starts with nothing but APP_PORT and
// JWT_SECRET set.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	JWTSecret string // secret used by the auth collaborator to sign access tokens

	LockStore string // seat lock store backend: "memory", "mysql" or "redis"
	DataStore string // ledger + catalog backend: "memory" or "mysql"

	DBUser string // database username (mysql backends)
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	AMQPURL string // RabbitMQ URL; empty disables seat-event publishing

	HoldTTLMin    time.Duration // lower clamp for client-requested hold TTLs
	HoldTTLMax    time.Duration // upper clamp for client-requested hold TTLs
	SweepInterval time.Duration // how often the expiry sweeper runs
	LockWait      time.Duration // max wait for a showtime's serialization boundary

	SeatMapFile string // optional JSON seat-map seed for the memory catalog

	LogLevel  string // zap level: debug/info/warn/error
	LogFormat string // "json" or "console"
}

// Load reads configuration from the environment.  Missing required
// variables cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       getenv("APP_ENV", "dev"),
		Port:      must("APP_PORT"),
		JWTSecret: must("JWT_SECRET"),

		LockStore: getenv("LOCK_STORE", "memory"),
		DataStore: getenv("DATA_STORE", "memory"),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: os.Getenv("DB_HOST"),
		DBPort: os.Getenv("DB_PORT"),
		DBName: os.Getenv("DB_NAME"),

		AMQPURL: amqpURL(),

		HoldTTLMin:    envDur("HOLD_TTL_MIN", time.Minute),
		HoldTTLMax:    envDur("HOLD_TTL_MAX", 30*time.Minute),
		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
		LockWait:      envDur("LOCK_WAIT_TIMEOUT", 5*time.Second),

		SeatMapFile: os.Getenv("SEATMAP_FILE"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "console"),
	}
}

// amqpURL honors both RABBITMQ_URL and the older AMQP_URL spelling.
// Empty means publishing is disabled.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are read as seconds for convenience.
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
