package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser       string
	DBPass       string
	DBHost       string
	DBPort       string
	DBName       string
	SSLMode      string
	RedisHost    string
	RedisPort    string
	NatsHost     string
	NatsPort     string
	ApiPort      string
	ApiEnabled   string
	PollInterval time.Duration
}

// New loads and validates configuration from environment variables.
// Redis is always required: it is the local durable cache and the primary
// store in demo/offline mode. Postgres is optional — when ACCORD_POSTGRES_HOST
// is unset the service runs entirely against the cache. NATS is optional —
// without it the notification bridge falls back to polling.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:       os.Getenv("ACCORD_POSTGRES_USER"),
		DBPass:       os.Getenv("ACCORD_POSTGRES_PASSWORD"),
		DBHost:       os.Getenv("ACCORD_POSTGRES_HOST"),
		DBPort:       os.Getenv("ACCORD_POSTGRES_PORT"),
		DBName:       os.Getenv("ACCORD_POSTGRES_DB"),
		SSLMode:      os.Getenv("ACCORD_POSTGRES_SSLMODE"),
		RedisHost:    os.Getenv("ACCORD_REDIS_HOST"),
		RedisPort:    os.Getenv("ACCORD_REDIS_PORT"),
		NatsHost:     os.Getenv("ACCORD_NATS_HOST"),
		NatsPort:     os.Getenv("ACCORD_NATS_PORT"),
		ApiPort:      os.Getenv("ACCORD_API_PORT"),
		ApiEnabled:   os.Getenv("ACCORD_API_ENABLED"),
		PollInterval: getEnvDuration("ACCORD_POLL_INTERVAL", 5*time.Second),
	}

	// Required: redis
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: ACCORD_REDIS_HOST/PORT")
	}

	// Optional: postgres, but all-or-nothing when configured
	if cfg.RemoteEnabled() {
		if cfg.DBUser == "" || cfg.DBName == "" || cfg.SSLMode == "" {
			return nil, fmt.Errorf("missing required env for database: ACCORD_POSTGRES_USER/DB/SSLMODE")
		}
	}

	// Optional: nats, but host and port go together
	if (cfg.NatsHost == "") != (cfg.NatsPort == "") {
		return nil, fmt.Errorf("ACCORD_NATS_HOST and ACCORD_NATS_PORT must be set together")
	}

	return cfg, nil
}

// RemoteEnabled reports whether the remote backend (Postgres) is configured.
func (c *Config) RemoteEnabled() bool {
	return c.DBHost != ""
}

// NatsEnabled reports whether the push side of the notification bridge is
// configured.
func (c *Config) NatsEnabled() bool {
	return c.NatsHost != ""
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if ACCORD_API_ENABLED != "true" — callers should skip
// starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("ACCORD_API_PORT is required when ACCORD_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (ACCORD_API_ENABLED != true)")
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
