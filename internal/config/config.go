// Package config loads the server configuration from the environment.
//
// A .env file in the working directory is read first, if present. Values
// already set in the real environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig

	// CatalogTTL bounds how long the skills/offers catalog is cached.
	CatalogTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string
}

// AuthConfig holds session and Discord OAuth settings.
type AuthConfig struct {
	JWTSecret           string
	SessionTTL          time.Duration
	DiscordClientID     string
	DiscordClientSecret string
	DiscordCallbackURL  string
	FrontendURL         string
	CookieSecure        bool
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  slog.Level
	Format string // "text" or "json"
}

// Load reads .env (optional) and the environment, then validates.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	var errs []error
	p := parser{errs: &errs}

	port := p.int("PORT", 8080)
	cfg := &Config{
		Server: ServerConfig{
			Port:         port,
			ReadTimeout:  p.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: p.duration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  p.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "data/aidboard.db"),
		},
		Auth: AuthConfig{
			JWTSecret:           os.Getenv("JWT_SECRET"),
			SessionTTL:          p.duration("SESSION_TTL", 30*24*time.Hour),
			DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
			DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
			DiscordCallbackURL:  getEnv("DISCORD_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/discord/callback", port)),
			FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
			CookieSecure:        p.bool("COOKIE_SECURE", false),
		},
		Log: LogConfig{
			Level:  p.level("LOG_LEVEL", slog.LevelInfo),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
		CatalogTTL: p.duration("CATALOG_TTL", 5*time.Minute),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET is required and must be at least 16 characters")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Server.Port)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// OAuthEnabled reports whether Discord login can be offered.
func (c *Config) OAuthEnabled() bool {
	return c.Auth.DiscordClientID != "" && c.Auth.DiscordClientSecret != ""
}

// getEnv gets an environment variable with a fallback value.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parser reads typed values and collects every malformed one, so a bad
// deployment reports all its mistakes at once.
type parser struct {
	errs *[]error
}

func (p parser) fail(key, value string, err error) {
	*p.errs = append(*p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p parser) int(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return n
}

func (p parser) bool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return b
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return fallback
	}
	if d <= 0 {
		p.fail(key, value, errors.New("must be positive"))
		return fallback
	}
	return d
}

func (p parser) level(key string, fallback slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(value)); err != nil {
		p.fail(key, value, err)
		return fallback
	}
	return l
}
