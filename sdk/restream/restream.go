// Package restream provides the public SDK surface of restreamctl.
//
// It re-exports the client, token store, and monitor types so external
// projects can embed the Restream client without importing internal
// packages.
package restream

import (
	"context"
	"time"

	internalauth "github.com/restream-tools/restreamctl/internal/auth"
	internalconfig "github.com/restream-tools/restreamctl/internal/config"
	internalexecutor "github.com/restream-tools/restreamctl/internal/executor"
	internalmonitor "github.com/restream-tools/restreamctl/internal/monitor"
	internalrestream "github.com/restream-tools/restreamctl/internal/restream"
	internalstore "github.com/restream-tools/restreamctl/internal/store"
)

// Client and its typed API resources.
type Client = internalrestream.Client

type Profile = internalrestream.Profile
type ChannelSummary = internalrestream.ChannelSummary
type Channel = internalrestream.Channel
type ChannelMeta = internalrestream.ChannelMeta
type StreamEvent = internalrestream.StreamEvent
type EventDestination = internalrestream.EventDestination
type EventsHistory = internalrestream.EventsHistory
type EventsPagination = internalrestream.EventsPagination
type StreamKey = internalrestream.StreamKey
type Platform = internalrestream.Platform
type IngestServer = internalrestream.IngestServer

// Error kinds surfaced by the client.
type AuthenticationError = internalexecutor.AuthenticationError
type APIError = internalexecutor.APIError
type NetworkError = internalexecutor.NetworkError
type ConnectionError = internalmonitor.ConnectionError
type ParseError = internalmonitor.ParseError

// OAuth negotiation and session records.
type TokenRecord = internalauth.TokenRecord
type Credentials = internalauth.Credentials
type Negotiator = internalauth.Negotiator
type PKCECodes = internalauth.PKCECodes
type CallbackServer = internalauth.CallbackServer
type CallbackResult = internalauth.CallbackResult

// Token store backends.
type TokenStore = internalstore.TokenStore
type MemoryTokenStore = internalstore.MemoryTokenStore
type FileTokenStore = internalstore.FileTokenStore
type PostgresTokenStore = internalstore.PostgresTokenStore
type PostgresTokenStoreConfig = internalstore.PostgresTokenStoreConfig
type ObjectTokenStore = internalstore.ObjectTokenStore
type ObjectStoreConfig = internalstore.ObjectTokenStoreConfig

// Request execution.
type Executor = internalexecutor.Executor
type ExecutorOptions = internalexecutor.Options
type RetryConfig = internalexecutor.RetryConfig
type WireLogger = internalexecutor.WireLogger
type Exchange = internalexecutor.Exchange

// Websocket monitors.
type Monitor = internalmonitor.Monitor
type ChatMonitor = internalmonitor.ChatMonitor
type MonitorOptions = internalmonitor.Options
type MonitorEvent = internalmonitor.Event
type MonitorKind = internalmonitor.Kind
type ChatMessage = internalmonitor.ChatMessage
type ReconnectPolicy = internalmonitor.ReconnectPolicy
type StreamingMetrics = internalmonitor.StreamingMetrics

// Configuration.
type Config = internalconfig.Config

func NewClient(exec *Executor, negotiator *Negotiator, tokens TokenStore) *Client {
	return internalrestream.NewClient(exec, negotiator, tokens)
}

func NewExecutor(opts ExecutorOptions) *Executor { return internalexecutor.New(opts) }

func NewNegotiator(creds Credentials, exec *Executor) *Negotiator {
	return internalauth.NewNegotiator(creds, exec)
}

func GeneratePKCECodes() (*PKCECodes, error) { return internalauth.GeneratePKCECodes() }

func GenerateState() (string, error) { return internalauth.GenerateState() }

func NewCallbackServer(expectedState string) *CallbackServer {
	return internalauth.NewCallbackServer(expectedState)
}

func NewMemoryTokenStore() *MemoryTokenStore { return internalstore.NewMemoryTokenStore() }

func NewFileTokenStore(path string) *FileTokenStore { return internalstore.NewFileTokenStore(path) }

func NewPostgresTokenStore(ctx context.Context, cfg PostgresTokenStoreConfig) (*PostgresTokenStore, error) {
	return internalstore.NewPostgresTokenStore(ctx, cfg)
}

func NewObjectTokenStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectTokenStore, error) {
	return internalstore.NewObjectTokenStore(ctx, cfg)
}

func NewStreamingMonitor(opts MonitorOptions) *Monitor {
	return internalmonitor.NewStreamingMonitor(opts)
}

func NewChatMonitor(opts MonitorOptions) *ChatMonitor {
	return internalmonitor.NewChatMonitor(opts)
}

func DefaultRetryConfig() RetryConfig { return internalexecutor.DefaultRetryConfig() }

func DefaultReconnectPolicy() ReconnectPolicy { return internalmonitor.DefaultReconnectPolicy() }

func LoadConfig(configFile string) (*Config, error) { return internalconfig.LoadConfig(configFile) }

func DefaultConfigPath() string { return internalconfig.DefaultConfigPath() }

// IsTransient reports whether err would be retried by the executor.
func IsTransient(err error) bool { return internalexecutor.IsTransient(err) }

// NewDefaultClient wires an executor, negotiator, and file-backed token
// store from a configuration in one call, covering the common embedding
// case. Callers needing a different store assemble the pieces directly.
func NewDefaultClient(cfg *Config) *Client {
	exec := internalexecutor.New(ExecutorOptions{
		BaseURL:  cfg.BaseURL,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		ProxyURL: cfg.ProxyURL,
		Retry: RetryConfig{
			MaxRetries:    cfg.MaxRetries,
			BackoffFactor: cfg.RetryBackoffFactor,
		},
	})
	negotiator := internalauth.NewNegotiator(Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, exec)
	return internalrestream.NewClient(exec, negotiator, internalstore.NewFileTokenStore(cfg.TokenFile))
}
