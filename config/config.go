package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"longentry/engine"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// HTTP API configuration
	API APIConfig

	// Logging configuration
	Log LogConfig

	// Alert webhooks
	Alerts AlertConfig

	// Weekly run configuration
	Run RunConfig

	// EngineConfigFile is the optional YAML file laid over the engine defaults
	EngineConfigFile string

	// Engine holds the decision engine tables
	Engine engine.Config
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port int
	// APIKeyHash is the hex SHA-256 of the key required by mutating routes.
	// Empty disables those routes.
	APIKeyHash string
}

// LogConfig holds zerolog settings
type LogConfig struct {
	Level  string
	Format string // console or json
}

// AlertConfig holds webhook alert settings
type AlertConfig struct {
	WebhookURLs []string
	AuthHeader  string
	AuthValue   string
	Retries     int
	RetryDelay  time.Duration
}

// RunConfig holds weekly run settings
type RunConfig struct {
	// LockTTL bounds how long a weekly run holds the Redis run lock
	LockTTL time.Duration
	// PublishActivations broadcasts pool activations on Redis after each write
	PublishActivations bool
	// Schedule enables the in-process weekly trigger of the serve command
	Schedule bool
	// ScheduleWeekday and ScheduleHour are on the session clock
	ScheduleWeekday time.Weekday
	ScheduleHour    int
}

// LoadFromEnv loads configuration from environment variables and the
// optional engine YAML file.
func LoadFromEnv() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg := &Config{
		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			Name:     getEnvOrDefault("DB_NAME", "longentry"),
			User:     getEnvOrDefault("DB_USER", "longentry"),
			Password: getEnvOrDefault("DB_PASSWORD", "longentry"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 20),
		},

		// Redis configuration
		Redis: RedisConfig{
			Enabled:  getEnvOrDefault("REDIS_ENABLED", "true") == "true",
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		},

		API: APIConfig{
			Port:       getEnvInt("API_PORT", 8080),
			APIKeyHash: apiKeyHash(),
		},

		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},

		Alerts: AlertConfig{
			WebhookURLs: splitList(os.Getenv("ALERT_WEBHOOK_URLS")),
			AuthHeader:  getEnvOrDefault("ALERT_AUTH_HEADER", ""),
			AuthValue:   getEnvOrDefault("ALERT_AUTH_VALUE", ""),
			Retries:     getEnvInt("ALERT_RETRIES", 3),
			RetryDelay:  getEnvDuration("ALERT_RETRY_DELAY", 2*time.Second),
		},

		Run: RunConfig{
			LockTTL:            getEnvDuration("RUN_LOCK_TTL", 2*time.Hour),
			PublishActivations: getEnvOrDefault("PUBLISH_ACTIVATIONS", "true") == "true",
			Schedule:           getEnvOrDefault("RUN_SCHEDULE_ENABLED", "false") == "true",
			ScheduleHour:       getEnvInt("RUN_SCHEDULE_HOUR", 6),
		},

		EngineConfigFile: getEnvOrDefault("ENGINE_CONFIG_FILE", ""),
	}

	weekday, err := parseWeekday(getEnvOrDefault("RUN_SCHEDULE_WEEKDAY", "saturday"))
	if err != nil {
		return nil, err
	}
	cfg.Run.ScheduleWeekday = weekday

	eng := engine.DefaultConfig()
	if cfg.EngineConfigFile != "" {
		if eng, err = LoadEngineFile(cfg.EngineConfigFile, eng); err != nil {
			return nil, err
		}
	}
	cfg.Engine = applyEngineEnv(eng)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEngineFile lays the YAML file at path over base. Keys absent from the
// file keep their base value; unknown keys are rejected.
func LoadEngineFile(path string, base engine.Config) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read engine config: %w", err)
	}
	return ParseEngineYAML(data, base)
}

// ParseEngineYAML decodes an engine YAML document over base.
func ParseEngineYAML(data []byte, base engine.Config) (engine.Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse engine config: %w", err)
	}
	return cfg, nil
}

// applyEngineEnv applies the engine settings that can be tuned per process.
func applyEngineEnv(cfg engine.Config) engine.Config {
	cfg.SessionOffsetHours = getEnvInt("SESSION_OFFSET_HOURS", cfg.SessionOffsetHours)
	cfg.Workers = getEnvInt("ENGINE_WORKERS", cfg.Workers)
	cfg.SymbolTimeout = getEnvDuration("ENGINE_SYMBOL_TIMEOUT", cfg.SymbolTimeout)
	return cfg
}

// Validate checks the process settings and the engine tables
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API_PORT %d out of range", c.API.Port)
	}
	if c.Run.ScheduleHour < 0 || c.Run.ScheduleHour > 23 {
		return fmt.Errorf("RUN_SCHEDULE_HOUR %d out of range", c.Run.ScheduleHour)
	}
	if c.API.APIKeyHash != "" {
		if b, err := hex.DecodeString(c.API.APIKeyHash); err != nil || len(b) != sha256.Size {
			return fmt.Errorf("API_KEY_HASH must be a hex SHA-256 digest")
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.Log.Format)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}

// apiKeyHash returns API_KEY_HASH, or the hash of API_KEY when only the
// plain key is given.
func apiKeyHash() string {
	if h := os.Getenv("API_KEY_HASH"); h != "" {
		return strings.ToLower(h)
	}
	if key := os.Getenv("API_KEY"); key != "" {
		sum := sha256.Sum256([]byte(key))
		return hex.EncodeToString(sum[:])
	}
	return ""
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvDuration gets environment variable as time.Duration or returns default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
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

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseWeekday accepts an English weekday name, full or abbreviated.
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Saturday, fmt.Errorf("RUN_SCHEDULE_WEEKDAY: unknown weekday %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
