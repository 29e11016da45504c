package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/config"
	"github.com/restream-tools/restreamctl/internal/monitor"
	"github.com/restream-tools/restreamctl/internal/restream"
	"github.com/restream-tools/restreamctl/internal/store"
	"github.com/restream-tools/restreamctl/internal/watcher"
)

// DoMonitor attaches to the requested websocket feed and prints events
// until the duration elapses, reconnection is given up, or ctx is
// cancelled. The access token is resolved once up front; a reconnect
// reuses it for the lifetime of the monitor.
func DoMonitor(ctx context.Context, cfg *config.Config, client *restream.Client, tokens store.TokenStore, mode string, duration time.Duration) error {
	token, err := client.AccessToken(ctx)
	if err != nil {
		return err
	}

	opts := monitor.Options{
		AccessToken: token,
		ProxyURL:    cfg.ProxyURL,
		Duration:    duration,
	}

	switch mode {
	case "streaming":
		return runStreamingMonitor(ctx, cfg, tokens, opts)
	case "chat":
		return runChatMonitor(ctx, cfg, tokens, opts)
	}
	return fmt.Errorf("unknown monitor mode %q (want streaming or chat)", mode)
}

func runStreamingMonitor(ctx context.Context, cfg *config.Config, tokens store.TokenStore, opts monitor.Options) error {
	m := monitor.NewStreamingMonitor(opts)
	events := m.Subscribe()

	stopWatch := watchSessionFile(ctx, cfg, tokens)
	defer stopWatch()

	if err := m.Start(ctx); err != nil {
		return err
	}
	go logMonitorErrors(m.Errors())
	go stopOnCancel(ctx, m)

	fmt.Println("Monitoring streaming events (Ctrl+C to stop)")
	for ev := range events {
		printStreamingEvent(ev)
	}
	<-m.Done()
	return nil
}

func runChatMonitor(ctx context.Context, cfg *config.Config, tokens store.TokenStore, opts monitor.Options) error {
	m := monitor.NewChatMonitor(opts)
	messages := m.Messages()

	stopWatch := watchSessionFile(ctx, cfg, tokens)
	defer stopWatch()

	if err := m.Start(ctx); err != nil {
		return err
	}
	go logMonitorErrors(m.Errors())
	go stopOnCancel(ctx, m.Monitor)

	fmt.Println("Monitoring chat messages (Ctrl+C to stop)")
	for msg := range messages {
		stamp := msg.Timestamp.Local().Format("15:04:05")
		if msg.Platform != "" {
			fmt.Printf("%s  [%s] %s: %s\n", stamp, msg.Platform, msg.Username, msg.Text)
			continue
		}
		fmt.Printf("%s  %s: %s\n", stamp, msg.Username, msg.Text)
	}
	<-m.Done()
	return nil
}

func printStreamingEvent(ev monitor.Event) {
	stamp := ev.Timestamp.Local().Format("15:04:05")
	switch ev.Kind {
	case monitor.KindStreamStarted:
		fmt.Printf("%s  stream started\n", stamp)
	case monitor.KindStreamStopped:
		fmt.Printf("%s  stream stopped\n", stamp)
	case monitor.KindMetricsUpdate:
		if metrics, ok := monitor.MetricsFromEvent(ev); ok {
			fmt.Printf("%s  metrics: bitrate=%dkbps fps=%.0f dropped=%d\n",
				stamp, metrics.Bitrate, metrics.FPS, metrics.DroppedFrames)
			return
		}
		fmt.Printf("%s  metrics: %s\n", stamp, ev.Payload)
	case monitor.KindHeartbeat:
		log.Debug("heartbeat received")
	case monitor.KindConnectionInfo:
		log.Debugf("connection info: %s", ev.Payload)
	default:
		fmt.Printf("%s  %-16s %s\n", stamp, ev.Action, ev.Payload)
	}
}

// stopOnCancel stops the monitor when ctx is cancelled so subscriber
// channels close and the print loops drain.
func stopOnCancel(ctx context.Context, m *monitor.Monitor) {
	select {
	case <-ctx.Done():
		m.Stop()
	case <-m.Done():
	}
}

func logMonitorErrors(errs <-chan error) {
	for err := range errs {
		log.WithError(err).Warn("monitor error")
	}
}

// watchSessionFile reports external changes to the token file while a
// monitor runs. Only the file backend has something to watch; for the
// other backends the returned stop function is a no-op. The running
// socket keeps its token either way; the log line tells the operator a
// re-run will pick up the new session.
func watchSessionFile(ctx context.Context, cfg *config.Config, tokens store.TokenStore) func() {
	fileStore, ok := tokens.(*store.FileTokenStore)
	if !ok {
		return func() {}
	}

	w, err := watcher.NewTokenFileWatcher(fileStore.Path(), func() {
		record, errLoad := fileStore.Load(context.Background())
		switch {
		case errLoad != nil:
			log.WithError(errLoad).Warn("token file changed on disk but could not be read")
		case record == nil:
			log.Warn("token file removed or emptied on disk; restart the monitor to re-authenticate")
		default:
			log.Info("token file changed on disk; the monitor keeps its current connection")
		}
	})
	if err != nil {
		log.WithError(err).Warn("token file watcher unavailable")
		return func() {}
	}
	if err = w.Start(ctx); err != nil {
		log.WithError(err).Warn("token file watcher failed to start")
		return func() {}
	}
	log.Debugf("watching token file %s", fileStore.Path())
	return w.Stop
}
