package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the whole application configuration.
type Config struct {
	Environment string         `json:"environment"`
	Server      ServerConfig   `json:"server"`
	Database    DatabaseConfig `json:"database"`
	Auth        AuthConfig     `json:"auth"`
	Telegram    TelegramConfig `json:"telegram"`
	Reminders   ReminderConfig `json:"reminders"`
	CORS        CORSConfig     `json:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// AuthConfig holds staff authentication settings.
type AuthConfig struct {
	JWTSecret   string        `json:"-"`
	AdminSecret string        `json:"-"`
	TokenTTL    time.Duration `json:"token_ttl"`
}

// TelegramConfig holds the optional reminder channel settings.
type TelegramConfig struct {
	Token string `json:"-"`
}

// ReminderConfig holds reminder scheduling settings.
type ReminderConfig struct {
	LeadMins int `json:"lead_mins"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// Load reads the configuration from environment variables. A .env file is
// honored when present.
func Load() (*Config, error) {
	// Missing .env is fine in production, variables come from the runtime.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_FILE", "agenda.db"),
		},
		Auth: AuthConfig{
			JWTSecret:   os.Getenv("JWT_SECRET"),
			AdminSecret: os.Getenv("ADMIN_SECRET"),
			TokenTTL:    getEnvAsDuration("TOKEN_TTL", 12*time.Hour),
		},
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_TOKEN"),
		},
		Reminders: ReminderConfig{
			LeadMins: getEnvAsInt("REMINDER_LEAD_MINS", 15),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DB_FILE must not be empty")
	}
	if c.Reminders.LeadMins < 0 {
		return fmt.Errorf("REMINDER_LEAD_MINS must be non-negative")
	}

	return nil
}

// ReminderLead returns the reminder lead as a duration.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.Reminders.LeadMins) * time.Minute
}

// getEnv reads an environment variable with a fallback.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAsInt reads an environment variable as an integer.
func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsDuration reads an environment variable as a duration.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvAsSlice reads a comma-separated environment variable.
func getEnvAsSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
