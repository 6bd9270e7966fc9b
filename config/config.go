// Package config loads the admin tool settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Storage backends selectable with WAITLIST_STORE.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds every setting. Defaults are provided via struct tags.
type Config struct {
	// APIURL is the REST API root. ENV: WAITLIST_API_URL
	APIURL string `env:"WAITLIST_API_URL,default=http://localhost:8080/api"`
	// Profile separates sessions against different deployments. ENV: WAITLIST_PROFILE
	Profile string `env:"WAITLIST_PROFILE,default=default"`

	// Store is one of file, memory, redis. ENV: WAITLIST_STORE
	Store string `env:"WAITLIST_STORE,default=file"`
	// StorePath overrides the session file location. ENV: WAITLIST_STORE_PATH
	StorePath string `env:"WAITLIST_STORE_PATH"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// RedisPrefix for all keys. ENV: WAITLIST_REDIS_PREFIX
	RedisPrefix string `env:"WAITLIST_REDIS_PREFIX,default=waitlist:session:"`

	// JWKSURL enables local signature verification. ENV: WAITLIST_JWKS_URL
	JWKSURL string `env:"WAITLIST_JWKS_URL"`
	// TokenLeeway is the clock skew tolerated on exp. ENV: WAITLIST_TOKEN_LEEWAY
	TokenLeeway time.Duration `env:"WAITLIST_TOKEN_LEEWAY,default=30s"`

	// RoutesFile is an optional YAML route table. ENV: WAITLIST_ROUTES_FILE
	RoutesFile string `env:"WAITLIST_ROUTES_FILE"`

	HTTPTimeout time.Duration `env:"WAITLIST_HTTP_TIMEOUT,default=15s"`
	LogLevel    string        `env:"WAITLIST_LOG_LEVEL,default=info"`
}

// Load decodes the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: WAITLIST_API_URL %q is not an absolute http(s) url", c.APIURL)
	}
	switch c.Store {
	case StoreFile, StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("config: WAITLIST_STORE %q: want %s, %s or %s", c.Store, StoreFile, StoreMemory, StoreRedis)
	}
	if c.Store == StoreRedis && c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR is required for the redis store")
	}
	if c.JWKSURL != "" {
		if u, err := url.Parse(c.JWKSURL); err != nil || u.Host == "" {
			return fmt.Errorf("config: WAITLIST_JWKS_URL %q is not an absolute url", c.JWKSURL)
		}
	}
	if c.TokenLeeway < 0 {
		return errors.New("config: WAITLIST_TOKEN_LEEWAY must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("config: WAITLIST_HTTP_TIMEOUT must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: WAITLIST_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
