// Copyright 2025 sigaid authors
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig holds the environment-derived configuration an agent-side
// process (the sigaid CLI, or any embedding library) needs to talk to an
// Authority. Field names mirror the SIGAID_* variables named in spec §6.
type ClientConfig struct {
	AuthorityURL string
	APIKey       string
	LeaseTTL     time.Duration
	AutoRenew    bool
}

// LoadClientConfig reads the SIGAID_* environment variables documented in
// spec §6. AuthorityURL defaults to the public Authority; everything else
// defaults to values safe for local experimentation with `sigaidd`.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{
		AuthorityURL: getEnv("SIGAID_AUTHORITY_URL", "https://api.sigaid.com"),
		APIKey:       getEnv("SIGAID_API_KEY", ""),
		LeaseTTL:     getEnvDuration("SIGAID_LEASE_TTL", 5*time.Minute),
		AutoRenew:    getEnvBool("SIGAID_AUTO_RENEW", true),
	}
	return cfg, nil
}

// Validate checks that a ClientConfig is usable against a non-local
// Authority. APIKey is only required once AuthorityURL stops pointing at a
// loopback address, so local development against a freshly started
// `sigaidd` needs no key.
func (c *ClientConfig) Validate() error {
	var errs []string
	if c.AuthorityURL == "" {
		errs = append(errs, "SIGAID_AUTHORITY_URL is required but not set")
	}
	if c.APIKey == "" && !strings.Contains(c.AuthorityURL, "localhost") && !strings.Contains(c.AuthorityURL, "127.0.0.1") {
		errs = append(errs, "SIGAID_API_KEY is required when SIGAID_AUTHORITY_URL is not local")
	}
	if c.LeaseTTL <= 0 {
		errs = append(errs, "SIGAID_LEASE_TTL must be a positive duration")
	}
	if len(errs) > 0 {
		return fmt.Errorf("client configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// AuthorityConfig holds the environment-derived configuration for the
// `sigaidd` Authority daemon: where it listens, where its KV store and
// PASETO signing key live, and the lease/clock-skew parameters spec §3 and
// §4.C leave to deployment.
type AuthorityConfig struct {
	ListenAddr         string
	HealthAddr         string
	DataDir            string
	PasetoKeyPath      string
	RegistrySeedPath   string // optional YAML file of agents to preload, see LoadRegistrySeed
	ClockSkew          time.Duration
	DefaultLeaseTTL    time.Duration
	DefaultMaxStateAge time.Duration
	LogLevel           string
}

// LoadAuthorityConfig reads the SIGAID_AUTHORITY_* environment variables.
func LoadAuthorityConfig() (*AuthorityConfig, error) {
	cfg := &AuthorityConfig{
		ListenAddr:         getEnv("SIGAID_AUTHORITY_LISTEN_ADDR", "0.0.0.0:8443"),
		HealthAddr:         getEnv("SIGAID_AUTHORITY_HEALTH_ADDR", "0.0.0.0:8444"),
		DataDir:            getEnv("SIGAID_AUTHORITY_DATA_DIR", "./data"),
		PasetoKeyPath:      getEnv("SIGAID_AUTHORITY_PASETO_KEY_PATH", ""),
		RegistrySeedPath:   getEnv("SIGAID_AUTHORITY_REGISTRY_SEED", ""),
		ClockSkew:          getEnvDuration("SIGAID_AUTHORITY_CLOCK_SKEW", 30*time.Second),
		DefaultLeaseTTL:    getEnvDuration("SIGAID_AUTHORITY_DEFAULT_LEASE_TTL", 2*time.Minute),
		DefaultMaxStateAge: getEnvDuration("SIGAID_AUTHORITY_DEFAULT_MAX_STATE_AGE", 5*time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate checks that an AuthorityConfig can safely start a production
// Authority daemon.
func (c *AuthorityConfig) Validate() error {
	var errs []string
	if c.ListenAddr == "" {
		errs = append(errs, "SIGAID_AUTHORITY_LISTEN_ADDR is required but not set")
	}
	if c.DataDir == "" {
		errs = append(errs, "SIGAID_AUTHORITY_DATA_DIR is required but not set")
	}
	if c.PasetoKeyPath == "" {
		errs = append(errs, "SIGAID_AUTHORITY_PASETO_KEY_PATH is required but not set")
	}
	if c.ClockSkew <= 0 || c.ClockSkew > 5*time.Minute {
		errs = append(errs, "SIGAID_AUTHORITY_CLOCK_SKEW must be between 0 and 5m")
	}
	if len(errs) > 0 {
		return fmt.Errorf("authority configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateForDevelopment performs relaxed validation suitable for running
// `sigaidd` against a throwaway local data directory.
// WARNING: Do not use this in production - use Validate() instead.
func (c *AuthorityConfig) ValidateForDevelopment() error {
	if c.DataDir == "" {
		return fmt.Errorf("development configuration validation failed:\n  - SIGAID_AUTHORITY_DATA_DIR is required")
	}
	return nil
}

// Helper functions for environment variable parsing, kept in the shape the
// teacher's pkg/config/config.go uses throughout.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
