// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	AllowedOrigin      string
	DBPath             string
	DataDir            string
	MaxAttachmentBytes int64
	ReplyQueueSize     int
	Delivery           DeliveryConfig
	Session            SessionConfig
}

// DeliveryConfig controls the downstream API and SMTP relay.
type DeliveryConfig struct {
	APIURL   string
	SMTPHost string
	SMTPFrom string
	SMTPTo   string
	Timeout  time.Duration
}

// SessionConfig selects where in-progress intakes live.
type SessionConfig struct {
	Store     string
	RedisAddr string
	RedisTTL  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", ""),
		DBPath:             getEnv("DB_PATH", "./data/incidents.db"),
		DataDir:            getEnv("DATA_DIR", "./data/files"),
		MaxAttachmentBytes: int64(getEnvInt("MAX_ATTACHMENT_BYTES", 20<<20)),
		ReplyQueueSize:     getEnvInt("REPLY_QUEUE_SIZE", 100),
		Delivery: DeliveryConfig{
			APIURL:   getEnv("API_URL", "https://httpbin.org/post"),
			SMTPHost: getEnv("SMTP_HOST", "localhost"),
			SMTPFrom: getEnv("SMTP_FROM", "intake@localhost"),
			SMTPTo:   getEnv("SMTP_TO", "support@localhost"),
			Timeout:  getEnvDuration("DELIVERY_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			Store:     strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisTTL:  getEnvDuration("REDIS_SESSION_TTL", 24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("MAX_ATTACHMENT_BYTES must be > 0")
	}
	if c.ReplyQueueSize <= 0 {
		return fmt.Errorf("REPLY_QUEUE_SIZE must be > 0")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be > 0")
	}
	if c.Delivery.SMTPHost != "" && (c.Delivery.SMTPFrom == "" || len(c.SMTPRecipients()) == 0) {
		return fmt.Errorf("SMTP_FROM and SMTP_TO are required when SMTP_HOST is set")
	}
	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty when SESSION_STORE=redis")
		}
		if c.Session.RedisTTL <= 0 {
			return fmt.Errorf("REDIS_SESSION_TTL must be > 0")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.Session.Store)
	}
	return nil
}

// SMTPRecipients splits SMTP_TO on commas.
func (c *Config) SMTPRecipients() []string {
	var out []string
	for _, addr := range strings.Split(c.Delivery.SMTPTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AllowedOrigin == "" ||
		strings.Contains(c.AllowedOrigin, "localhost") ||
		strings.Contains(c.AllowedOrigin, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
