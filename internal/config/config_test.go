package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// clearEnv keeps ambient environment values from leaking into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RESTREAM_CLIENT_ID", "")
	t.Setenv("RESTREAM_CLIENT_SECRET", "")
	t.Setenv("RESTREAM_PGSTORE_DSN", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.Equal(t, DefaultBackoffFactor, cfg.RetryBackoffFactor)
	require.Equal(t, "file", cfg.TokenStore)
	require.Equal(t, DefaultCallbackPort, cfg.CallbackPort)
	require.Equal(t, "logs", cfg.LogsDir)
	require.Equal(t, DefaultScopes, cfg.Scopes)
	require.Empty(t, cfg.ClientID)
	require.False(t, cfg.Debug)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, "file", cfg.TokenStore)
}

func TestLoadConfigReadsYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
client-id: app-123
client-secret: shh
base-url: https://api.example.test/v2
timeout-seconds: 5
max-retries: 1
retry-backoff-factor: 0.1
proxy-url: socks5://127.0.0.1:1080
token-store: memory
callback-port: 9090
scopes:
  - profile.default.read
debug: true
logging-to-file: true
logs-dir: /tmp/restreamctl-logs
request-log: true
postgres:
  dsn: postgres://user:pw@localhost:5432/tokens
  schema: auth
  table: sessions
object-store:
  endpoint: http://127.0.0.1:9000
  bucket: tokens
  access-key: ak
  secret-key: sk
  prefix: restreamctl
  path-style: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "app-123", cfg.ClientID)
	require.Equal(t, "shh", cfg.ClientSecret)
	require.Equal(t, "https://api.example.test/v2", cfg.BaseURL)
	require.Equal(t, 5, cfg.TimeoutSeconds)
	require.Equal(t, 1, cfg.MaxRetries)
	require.Equal(t, 0.1, cfg.RetryBackoffFactor)
	require.Equal(t, "socks5://127.0.0.1:1080", cfg.ProxyURL)
	require.Equal(t, "memory", cfg.TokenStore)
	require.Equal(t, 9090, cfg.CallbackPort)
	require.Equal(t, []string{"profile.default.read"}, cfg.Scopes)
	require.True(t, cfg.Debug)
	require.True(t, cfg.LoggingToFile)
	require.Equal(t, "/tmp/restreamctl-logs", cfg.LogsDir)
	require.True(t, cfg.RequestLog)
	require.Equal(t, "postgres://user:pw@localhost:5432/tokens", cfg.Postgres.DSN)
	require.Equal(t, "auth", cfg.Postgres.Schema)
	require.Equal(t, "sessions", cfg.Postgres.Table)
	require.Equal(t, "http://127.0.0.1:9000", cfg.ObjectStore.Endpoint)
	require.Equal(t, "tokens", cfg.ObjectStore.Bucket)
	require.True(t, cfg.ObjectStore.PathStyle)
}

func TestLoadConfigEnvironmentWins(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "client-id: file-id\nclient-secret: file-secret\n")

	t.Setenv("RESTREAM_CLIENT_ID", "env-id")
	t.Setenv("RESTREAM_CLIENT_SECRET", "env-secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "env-id", cfg.ClientID)
	require.Equal(t, "env-secret", cfg.ClientSecret)
}

func TestLoadConfigPostgresDSNSelectsBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESTREAM_PGSTORE_DSN", "postgres://env@localhost/tokens")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.TokenStore, "a DSN from the environment selects the postgres backend")
	require.Equal(t, "postgres://env@localhost/tokens", cfg.Postgres.DSN)

	// An explicit token-store in the file is not overridden.
	path := writeConfig(t, "token-store: file\n")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "file", cfg.TokenStore)
	require.Equal(t, "postgres://env@localhost/tokens", cfg.Postgres.DSN)
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "token-store: redis\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown token-store")
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "client-id: [unclosed\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse")
}

func TestLoadConfigRetryBounds(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, "max-retries: -1\n"))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.MaxRetries, "negative retries clamp to zero, meaning no retries")

	cfg, err = LoadConfig(writeConfig(t, "retry-backoff-factor: -2\n"))
	require.NoError(t, err)
	require.Equal(t, DefaultBackoffFactor, cfg.RetryBackoffFactor)
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	want := filepath.Join("restreamctl", "config.yaml")
	if !strings.HasSuffix(path, want) {
		t.Errorf("DefaultConfigPath() = %q, want suffix %q", path, want)
	}
}
