// Package config loads and validates the client configuration. Settings
// come from a YAML file with every field optional; unset values fall back
// to defaults and the OAuth application credentials may be supplied
// through RESTREAM_CLIENT_ID / RESTREAM_CLIENT_SECRET instead of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by LoadConfig when the file leaves a field unset.
const (
	DefaultBaseURL        = "https://api.restream.io/v2"
	DefaultTimeoutSeconds = 30
	DefaultMaxRetries     = 3
	DefaultBackoffFactor  = 0.5
	DefaultCallbackPort   = 8085
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// ClientID is the OAuth application id issued by the Restream developer
	// portal. Overridden by the RESTREAM_CLIENT_ID environment variable.
	ClientID string `yaml:"client-id" json:"client-id"`

	// ClientSecret is the optional OAuth application secret. Leaving it
	// empty keeps the client public and authenticates code exchanges with
	// PKCE only. Overridden by RESTREAM_CLIENT_SECRET.
	ClientSecret string `yaml:"client-secret" json:"client-secret"`

	// BaseURL is the REST root of the Restream API.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// TimeoutSeconds bounds one HTTP attempt including the response body.
	TimeoutSeconds int `yaml:"timeout-seconds" json:"timeout-seconds"`

	// MaxRetries is the number of additional attempts after the first one
	// for transient failures.
	MaxRetries int `yaml:"max-retries" json:"max-retries"`

	// RetryBackoffFactor scales the exponential retry delay in seconds:
	// the wait before retry n is RetryBackoffFactor * 2^(n-1) seconds.
	RetryBackoffFactor float64 `yaml:"retry-backoff-factor" json:"retry-backoff-factor"`

	// ProxyURL optionally routes REST and websocket traffic through an
	// http, https, or socks5 proxy.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// TokenStore selects the session backend: memory, file, postgres, or
	// object. Empty selects file.
	TokenStore string `yaml:"token-store" json:"token-store"`

	// TokenFile overrides the token file location of the file backend.
	TokenFile string `yaml:"token-file" json:"token-file"`

	// Postgres configures the postgres token store backend. The DSN may
	// also come from RESTREAM_PGSTORE_DSN.
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`

	// ObjectStore configures the S3-compatible token store backend.
	ObjectStore ObjectStoreConfig `yaml:"object-store" json:"object-store"`

	// CallbackPort is the loopback port the login flow listens on for the
	// authorization redirect. It must match the redirect URI registered
	// with the OAuth application.
	CallbackPort int `yaml:"callback-port" json:"callback-port"`

	// Scopes requested during login.
	Scopes []string `yaml:"scopes" json:"scopes"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile redirects logs from stdout to rotating files under
	// LogsDir.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsDir is the directory for log output and wire dumps.
	LogsDir string `yaml:"logs-dir" json:"logs-dir"`

	// RequestLog enables per-request wire dumps under LogsDir/wire.
	RequestLog bool `yaml:"request-log" json:"request-log"`
}

// PostgresConfig holds the postgres token store settings.
type PostgresConfig struct {
	// DSN is the connection string; empty disables the backend unless
	// RESTREAM_PGSTORE_DSN is set.
	DSN string `yaml:"dsn" json:"dsn"`

	// Schema optionally namespaces the token table.
	Schema string `yaml:"schema" json:"schema"`

	// Table overrides the token table name.
	Table string `yaml:"table" json:"table"`
}

// ObjectStoreConfig holds the S3-compatible token store settings.
type ObjectStoreConfig struct {
	// Endpoint is the host[:port] of the object store. A http:// or
	// https:// prefix selects the transport; https is the default.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Bucket holding the token object.
	Bucket string `yaml:"bucket" json:"bucket"`

	// AccessKey and SecretKey authenticate against the store.
	AccessKey string `yaml:"access-key" json:"access-key"`
	SecretKey string `yaml:"secret-key" json:"secret-key"`

	// Region passed through to bucket operations.
	Region string `yaml:"region" json:"region"`

	// Prefix prepended to the token object key.
	Prefix string `yaml:"prefix" json:"prefix"`

	// PathStyle forces path-style bucket addressing, needed by MinIO and
	// most self-hosted stores.
	PathStyle bool `yaml:"path-style" json:"path-style"`
}

// DefaultScopes cover the read surface the CLI exposes.
var DefaultScopes = []string{"profile.default.read", "channel.default.read", "stream.default.read", "chat.default.read"}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "restreamctl", "config.yaml")
	}
	return filepath.Join(".restreamctl", "config.yaml")
}

// LoadConfig reads the YAML file at configPath, applies defaults and the
// environment overlay, and validates the result. A missing file is not an
// error; the configuration then consists of defaults and environment
// values only.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(configPath) != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		if err == nil {
			if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
				return nil, fmt.Errorf("config: parse %s: %w", configPath, errUnmarshal)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded file. Environment
// values win so containerized deployments can keep secrets out of the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("RESTREAM_CLIENT_ID")); v != "" {
		c.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("RESTREAM_CLIENT_SECRET")); v != "" {
		c.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("RESTREAM_PGSTORE_DSN")); v != "" {
		c.Postgres.DSN = v
		if strings.TrimSpace(c.TokenStore) == "" {
			c.TokenStore = "postgres"
		}
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoffFactor <= 0 {
		c.RetryBackoffFactor = DefaultBackoffFactor
	}
	if strings.TrimSpace(c.TokenStore) == "" {
		c.TokenStore = "file"
	}
	if c.CallbackPort <= 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if strings.TrimSpace(c.LogsDir) == "" {
		c.LogsDir = "logs"
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.TokenStore)) {
	case "memory", "file", "postgres", "object":
	default:
		return fmt.Errorf("config: unknown token-store %q (want memory, file, postgres, or object)", c.TokenStore)
	}
	return nil
}
