package config

import (
	"fmt"
	"strings"
	"time"
)

const insecureAdminToken = "change-me-admin-token"

// Config holds all configuration for the license server
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Keys      KeysConfig      `yaml:"keys" envconfig:"KEYS"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Policy    PolicyConfig    `yaml:"policy" envconfig:"POLICY"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// KeysConfig locates the license signing key pair
type KeysConfig struct {
	PrivateKeyPath    string `yaml:"private_key_path" split_words:"true"`
	PublicKeyPath     string `yaml:"public_key_path" split_words:"true"`
	Bits              int    `yaml:"bits" split_words:"true"`
	GenerateIfMissing bool   `yaml:"generate_if_missing" split_words:"true"`
}

// LicenseConfig contains license issuance defaults
type LicenseConfig struct {
	Company         string `yaml:"company" split_words:"true"`
	DefaultType     string `yaml:"default_type" split_words:"true"`
	DefaultDuration string `yaml:"default_duration" split_words:"true"`
	MaxDuration     string `yaml:"max_duration" split_words:"true"`
}

// PolicyConfig contains issuance and verification policy
type PolicyConfig struct {
	MaxInstallations    int  `yaml:"max_installations" split_words:"true"`
	MaxLicensesPerUser  int  `yaml:"max_licenses_per_user" split_words:"true"`
	RequireTOTP         bool `yaml:"require_totp" split_words:"true"`
	AutoRevokeOnSharing bool `yaml:"auto_revoke_on_sharing" split_words:"true"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token string `yaml:"token" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" split_words:"true"`
	RequestsPerMinute int  `yaml:"requests_per_minute" split_words:"true"`
	Burst             int  `yaml:"burst" split_words:"true"`
}

// Default returns a configuration with every optional setting filled in.
// The admin token is left empty and must be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/licenses.db",
		},
		Keys: KeysConfig{
			PrivateKeyPath:    "keys/private_key.pem",
			PublicKeyPath:     "keys/public_key.pem",
			Bits:              2048,
			GenerateIfMissing: true,
		},
		License: LicenseConfig{
			Company:         "OSPL",
			DefaultType:     "Subscription - Monthly",
			DefaultDuration: "30d",
			MaxDuration:     "365d",
		},
		Policy: PolicyConfig{
			MaxInstallations:   1,
			MaxLicensesPerUser: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Keys.PrivateKeyPath == "" {
		return fmt.Errorf("keys.private_key_path is required")
	}
	if c.Keys.PublicKeyPath == "" {
		return fmt.Errorf("keys.public_key_path is required")
	}
	if c.Keys.Bits != 0 && c.Keys.Bits < 2048 {
		return fmt.Errorf("keys.bits must be at least 2048")
	}

	if c.License.Company == "" || strings.Trim(c.License.Company, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz") != "" {
		return fmt.Errorf("license.company must be ASCII letters")
	}
	defaultDays, err := parseDays(c.License.DefaultDuration)
	if err != nil {
		return fmt.Errorf("license.default_duration is invalid: %w", err)
	}
	maxDays, err := parseDays(c.License.MaxDuration)
	if err != nil {
		return fmt.Errorf("license.max_duration is invalid: %w", err)
	}
	if defaultDays > maxDays {
		return fmt.Errorf("license.default_duration exceeds license.max_duration")
	}

	if c.Policy.MaxInstallations <= 0 {
		return fmt.Errorf("policy.max_installations must be positive")
	}
	if c.Policy.MaxLicensesPerUser < 0 {
		return fmt.Errorf("policy.max_licenses_per_user must not be negative")
	}

	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if len(c.Admin.Token) < 16 {
		return fmt.Errorf("admin.token must be at least 16 characters")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive when enabled")
	}

	return nil
}

// UsesInsecureAdminToken reports whether the sample admin token is in use
func (c *Config) UsesInsecureAdminToken() bool {
	return c.Admin.Token == insecureAdminToken
}

// DefaultDurationDays returns the default license validity in days
func (c *Config) DefaultDurationDays() int {
	d, _ := parseDays(c.License.DefaultDuration)
	return d
}

// MaxDurationDays returns the longest license validity in days
func (c *Config) MaxDurationDays() int {
	d, _ := parseDays(c.License.MaxDuration)
	return d
}

// parseDays parses a whole-day duration such as "30d" or "720h"
func parseDays(s string) (int, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 || d%(24*time.Hour) != 0 {
		return 0, fmt.Errorf("%q is not a positive whole number of days", s)
	}
	return int(d / (24 * time.Hour)), nil
}

// ParseDuration parses duration with support for days (e.g., "90d")
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
