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

var ErrMissingSecret = errors.New("SECRET_KEY environment variable is required")

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns DB_URL when set, otherwise a URL assembled from the individual parts.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig

	SecretKey string
	TokenTTL  time.Duration

	MediaRoot string
	MediaURL  string

	PageSize  int
	CacheTTL  time.Duration
	CacheSize int

	LogLevel string
	Debug    bool
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecret
	}
	if c.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			Name:    "postgres",
			SSLMode: "disable",
		},
		TokenTTL:  24 * time.Hour,
		MediaRoot: "uploads",
		MediaURL:  "/media/",
		PageSize:  10,
		CacheTTL:  20 * time.Second,
		CacheSize: 256,
		LogLevel:  "info",
	}
}

// Load reads envFile (".env" when empty) if it exists and then applies environment
// overrides on top of Default.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Default()

	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Database.URL = os.Getenv("DB_URL")
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = getEnvOrDefault("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSL_MODE", cfg.Database.SSLMode)

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	cfg.MediaRoot = getEnvOrDefault("MEDIA_ROOT", cfg.MediaRoot)
	cfg.MediaURL = getEnvOrDefault("MEDIA_URL", cfg.MediaURL)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.Debug = os.Getenv("DEBUG") == "true"

	var err error
	if cfg.Server.Port, err = getIntEnv("SERVER_PORT", cfg.Server.Port); err != nil {
		return nil, err
	}
	if cfg.Database.Port, err = getIntEnv("DB_PORT", cfg.Database.Port); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = getIntEnv("PAGE_SIZE", cfg.PageSize); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = getIntEnv("CACHE_SIZE", cfg.CacheSize); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getDurationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDurationEnv("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
