// Package main provides the entry point for restreamctl, a command line
// client for the Restream.io API: interactive OAuth login, account and
// channel inspection, stream key retrieval, and live event monitoring
// over websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/auth"
	"github.com/restream-tools/restreamctl/internal/buildinfo"
	"github.com/restream-tools/restreamctl/internal/cmd"
	"github.com/restream-tools/restreamctl/internal/config"
	"github.com/restream-tools/restreamctl/internal/executor"
	"github.com/restream-tools/restreamctl/internal/logging"
	"github.com/restream-tools/restreamctl/internal/restream"
	"github.com/restream-tools/restreamctl/internal/store"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.Init()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, builds the token
// store and API client, and runs the selected action.
func main() {
	var (
		configPath       string
		login            bool
		noBrowser        bool
		callbackPort     int
		logout           bool
		profile          bool
		platforms        bool
		servers          bool
		channels         bool
		channelID        int64
		setChannelActive string
		channelMetaID    int64
		setChannelTitle  string
		eventID          string
		events           string
		page             int
		limit            int
		streamKey        bool
		eventStreamKey   string
		monitorMode      string
		duration         time.Duration
		storeBackend     string
		debugMode        bool
		showVersion      bool
	)

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configuration file path")
	flag.BoolVar(&login, "login", false, "Log in to Restream using OAuth")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override the configured OAuth callback port")
	flag.BoolVar(&logout, "logout", false, "Clear the stored session")
	flag.BoolVar(&profile, "profile", false, "Show the authenticated account")
	flag.BoolVar(&platforms, "platforms", false, "List supported streaming platforms")
	flag.BoolVar(&servers, "servers", false, "List ingest servers")
	flag.BoolVar(&channels, "channels", false, "List the account's channels")
	flag.Int64Var(&channelID, "channel", 0, "Show one channel by id")
	flag.StringVar(&setChannelActive, "set-channel-active", "", "Toggle a channel: <id>=on|off")
	flag.Int64Var(&channelMetaID, "channel-meta", 0, "Show a channel's stream title by channel id")
	flag.StringVar(&setChannelTitle, "set-channel-title", "", "Update a channel's stream title: <id>=<title>")
	flag.StringVar(&eventID, "event", "", "Show one stream event by id")
	flag.StringVar(&events, "events", "", "List stream events: upcoming, in-progress, or history")
	flag.IntVar(&page, "page", 1, "Page for -events history")
	flag.IntVar(&limit, "limit", 10, "Page size for -events history")
	flag.BoolVar(&streamKey, "stream-key", false, "Show the account's stream key")
	flag.StringVar(&eventStreamKey, "event-stream-key", "", "Show the stream key of one event by event id")
	flag.StringVar(&monitorMode, "monitor", "", "Monitor a websocket feed: streaming or chat")
	flag.DurationVar(&duration, "duration", 0, "Stop monitoring after this long (0 runs until interrupted)")
	flag.StringVar(&storeBackend, "store", "", "Token store backend: memory, file, postgres, or object")
	flag.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit")

	flag.CommandLine.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.Summary())
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		os.Exit(1)
	}

	// An optional .env in the working directory seeds credentials for
	// local runs.
	if errEnv := godotenv.Load(filepath.Join(wd, ".env")); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		log.WithError(errEnv).Warn("failed to load .env file")
	}

	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	if debugMode {
		cfg.Debug = true
	}
	applyObjectStoreEnv(cfg)
	if storeBackend != "" {
		cfg.TokenStore = storeBackend
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		os.Exit(1)
	}
	logging.SetLogLevel(cfg)
	log.Debug(buildinfo.Summary())

	tokens, err := buildTokenStore(cfg)
	if err != nil {
		log.Errorf("failed to initialize token store: %v", err)
		os.Exit(1)
	}
	defer closeStore(tokens)

	var wireLog executor.WireLogger
	if cfg.RequestLog {
		wireLog = logging.NewFileWireLogger(true, filepath.Join(cfg.LogsDir, "wire"))
	}
	exec := executor.New(executor.Options{
		BaseURL:  cfg.BaseURL,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		ProxyURL: cfg.ProxyURL,
		Retry: executor.RetryConfig{
			MaxRetries:    cfg.MaxRetries,
			BackoffFactor: cfg.RetryBackoffFactor,
		},
		WireLog: wireLog,
	})
	negotiator := auth.NewNegotiator(auth.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}, exec)
	client := restream.NewClient(exec, negotiator, tokens)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loginOptions := &cmd.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: callbackPort,
	}

	// Handle the different command modes based on the provided flags.
	if login {
		err = cmd.DoLogin(ctx, cfg, client, loginOptions)
	} else if logout {
		err = cmd.DoLogout(ctx, client)
	} else if profile {
		err = cmd.DoProfile(ctx, client)
	} else if platforms {
		err = cmd.DoPlatforms(ctx, client)
	} else if servers {
		err = cmd.DoIngestServers(ctx, client)
	} else if channels {
		err = cmd.DoChannels(ctx, client)
	} else if channelID > 0 {
		err = cmd.DoChannel(ctx, client, channelID)
	} else if setChannelActive != "" {
		err = cmd.DoSetChannelActive(ctx, client, setChannelActive)
	} else if channelMetaID > 0 {
		err = cmd.DoChannelMeta(ctx, client, channelMetaID)
	} else if setChannelTitle != "" {
		err = cmd.DoSetChannelTitle(ctx, client, setChannelTitle)
	} else if eventID != "" {
		err = cmd.DoEvent(ctx, client, eventID)
	} else if events != "" {
		err = cmd.DoEvents(ctx, client, events, page, limit)
	} else if streamKey {
		err = cmd.DoStreamKey(ctx, client)
	} else if eventStreamKey != "" {
		err = cmd.DoEventStreamKey(ctx, client, eventStreamKey)
	} else if monitorMode != "" {
		err = cmd.DoMonitor(ctx, cfg, client, tokens, monitorMode, duration)
	} else {
		flag.Usage()
		return
	}

	if err != nil {
		var authErr *restream.AuthenticationError
		if errors.As(err, &authErr) {
			log.Error(authErr.Error())
			_, _ = fmt.Fprintln(os.Stderr, "Run restreamctl -login to authenticate.")
			os.Exit(1)
		}
		log.Error(err)
		os.Exit(1)
	}
}

// printUsage renders the flag help with the usage text on the same line as
// short flags instead of the stock two-line format.
func printUsage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage of %s\n", os.Args[0])
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		valueName, usage := flag.UnquoteUsage(f)
		header := "  -" + f.Name
		if valueName != "" {
			header += " " + valueName
		}
		sep := "\n    "
		if len(header) <= 4 {
			sep = "\t"
		}
		line := header + sep + usage
		if def := f.DefValue; def != "" && def != "false" && def != "0" {
			line += fmt.Sprintf(" (default %s)", def)
		}
		_, _ = fmt.Fprintln(out, line)
	})
}

// firstEnv returns the first of the named environment variables that is
// non-empty after trimming.
func firstEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value, true
		}
	}
	return "", false
}

// applyObjectStoreEnv lets deployments select the object storage backend
// purely through the environment, mirroring how the postgres DSN can be
// supplied without a config file. An explicit postgres selection wins.
func applyObjectStoreEnv(cfg *config.Config) {
	if value, ok := firstEnv("RESTREAM_OBJECTSTORE_ENDPOINT", "OBJECTSTORE_ENDPOINT"); ok {
		cfg.ObjectStore.Endpoint = value
		if cfg.TokenStore != "postgres" {
			cfg.TokenStore = "object"
		}
	}
	if value, ok := firstEnv("RESTREAM_OBJECTSTORE_ACCESS_KEY", "OBJECTSTORE_ACCESS_KEY"); ok {
		cfg.ObjectStore.AccessKey = value
	}
	if value, ok := firstEnv("RESTREAM_OBJECTSTORE_SECRET_KEY", "OBJECTSTORE_SECRET_KEY"); ok {
		cfg.ObjectStore.SecretKey = value
	}
	if value, ok := firstEnv("RESTREAM_OBJECTSTORE_BUCKET", "OBJECTSTORE_BUCKET"); ok {
		cfg.ObjectStore.Bucket = value
	}
}

// buildTokenStore constructs the configured session backend.
func buildTokenStore(cfg *config.Config) (store.TokenStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.TokenStore)) {
	case "", "file":
		fileStore := store.NewFileTokenStore(cfg.TokenFile)
		log.Debugf("file token store enabled, path: %s", fileStore.Path())
		return fileStore, nil
	case "memory":
		return store.NewMemoryTokenStore(), nil
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pgStore, err := store.NewPostgresTokenStore(ctx, store.PostgresTokenStoreConfig{
			DSN:    cfg.Postgres.DSN,
			Schema: cfg.Postgres.Schema,
			Table:  cfg.Postgres.Table,
		})
		if err != nil {
			return nil, err
		}
		log.Info("postgres-backed token store enabled")
		return pgStore, nil
	case "object":
		endpoint, useSSL, err := resolveObjectEndpoint(cfg.ObjectStore.Endpoint)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		objStore, err := store.NewObjectTokenStore(ctx, store.ObjectTokenStoreConfig{
			Endpoint:  endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseSSL:    useSSL,
			PathStyle: cfg.ObjectStore.PathStyle,
			Region:    cfg.ObjectStore.Region,
			Bucket:    cfg.ObjectStore.Bucket,
			Prefix:    cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return nil, err
		}
		log.Infof("object-backed token store enabled, bucket: %s", cfg.ObjectStore.Bucket)
		return objStore, nil
	}
	return nil, fmt.Errorf("unknown token store %q (want memory, file, postgres, or object)", cfg.TokenStore)
}

// resolveObjectEndpoint strips the optional scheme from the configured
// endpoint and derives the transport from it. https is the default.
func resolveObjectEndpoint(raw string) (string, bool, error) {
	endpoint := strings.TrimSpace(raw)
	useSSL := true
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("parse object store endpoint %q: %w", raw, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			useSSL = false
		case "https":
			useSSL = true
		default:
			return "", false, fmt.Errorf("unsupported object store scheme %q (only http and https are allowed)", parsed.Scheme)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("object store endpoint %q is missing host information", raw)
		}
		endpoint = parsed.Host
		if parsed.Path != "" && parsed.Path != "/" {
			endpoint = strings.TrimSuffix(parsed.Host+parsed.Path, "/")
		}
	}
	return strings.TrimRight(endpoint, "/"), useSSL, nil
}

func closeStore(tokens store.TokenStore) {
	if closer, ok := tokens.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("failed to close token store")
		}
	}
}
