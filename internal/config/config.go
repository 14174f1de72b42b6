// Package config loads the runtime configuration of the Skai commands from
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Sternrassler/skai/pkg/logging"
	"github.com/Sternrassler/skai/pkg/provider"
)

// Durable cache backends selectable with SKAI_CACHE.
const (
	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

// ProxyConfig configures cmd/skai-proxy.
type ProxyConfig struct {
	Port string `env:"PORT" envDefault:"8080"`

	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
	Model   string `env:"OPENAI_MODEL"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`
	UpstreamRPS     float64       `env:"UPSTREAM_RPS" envDefault:"0"`
	UpstreamBurst   int           `env:"UPSTREAM_BURST" envDefault:"0"`

	CacheCapacity int           `env:"CACHE_CAPACITY" envDefault:"100"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"24h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY"`
}

// ClientConfig configures cmd/skai. Flags override these values.
type ClientConfig struct {
	ProxyURL string `env:"SKAI_PROXY_URL" envDefault:"http://localhost:8080/api/astronomy-events"`
	Direct   bool   `env:"SKAI_DIRECT"`
	APIKey   string `env:"OPENAI_API_KEY"`

	Cache      string `env:"SKAI_CACHE" envDefault:"file"`
	CacheDir   string `env:"SKAI_CACHE_DIR"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath string `env:"SKAI_SQLITE_PATH"`

	LogLevel string `env:"SKAI_LOG_LEVEL" envDefault:"warn"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadProxy parses and validates the proxy configuration.
func LoadProxy() (ProxyConfig, error) {
	var cfg ProxyConfig
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadClient parses and validates the client configuration.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges. A missing API key is reported by the
// provider constructor instead.
func (c ProxyConfig) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	if c.UpstreamRPS < 0 {
		return fmt.Errorf("UPSTREAM_RPS must not be negative, got %v", c.UpstreamRPS)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.CacheCapacity)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// ProviderConfig maps the proxy settings onto the OpenAI generator config.
func (c ProxyConfig) ProviderConfig() provider.Config {
	cfg := provider.DefaultConfig()
	cfg.APIKey = c.APIKey
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.Model != "" {
		cfg.Model = c.Model
	}
	return cfg
}

// Validate checks the backend selection and log level.
func (c ClientConfig) Validate() error {
	if err := ValidateCacheBackend(c.Cache); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// ValidateCacheBackend reports whether name is a known durable backend.
func ValidateCacheBackend(name string) error {
	switch name {
	case CacheFile, CacheRedis, CacheSQLite, CacheMemory:
		return nil
	default:
		return fmt.Errorf("unknown cache backend %q (want %s, %s, %s or %s)",
			name, CacheFile, CacheRedis, CacheSQLite, CacheMemory)
	}
}
