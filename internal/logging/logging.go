// Package logging configures the shared logrus instance and provides the
// optional per-request wire dumps. Output goes to stdout by default and to
// rotating files under the configured logs directory when file logging is
// enabled.
package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/restream-tools/restreamctl/internal/config"
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// logFieldOrder fixes the display order of structured fields so log lines
// stay comparable across runs.
var logFieldOrder = []string{"store", "url", "attempt", "status", "kind", "error"}

// LogFormatter renders entries as
// [2026-08-25 20:14:04] [a1b2c3d4] [info ] [client.go:97] message key=value
// where the second column is the request id when one is attached.
type LogFormatter struct{}

// Format implements logrus.Formatter.
func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = &bytes.Buffer{}
	}

	requestID := "--------"
	if id, ok := entry.Data["request_id"].(string); ok && id != "" {
		requestID = id
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	fmt.Fprintf(buf, "[%s] [%s] [%-5s]", entry.Time.Format("2006-01-02 15:04:05"), requestID, level)
	if entry.Caller != nil {
		fmt.Fprintf(buf, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	buf.WriteByte(' ')
	buf.WriteString(strings.TrimRight(entry.Message, "\r\n"))
	for _, key := range logFieldOrder {
		if v, ok := entry.Data[key]; ok {
			fmt.Fprintf(buf, " %s=%v", key, v)
		}
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// Init wires the shared logrus instance: the custom formatter, caller
// reporting, and an exit hook that closes any open log file. Calling it
// again is a no-op.
func Init() {
	setupOnce.Do(func() {
		log.SetFormatter(&LogFormatter{})
		log.SetReportCaller(true)
		log.SetOutput(os.Stdout)
		log.RegisterExitHandler(closeLogOutputs)
	})
}

// SetLogLevel switches between info and debug level based on the config.
func SetLogLevel(cfg *config.Config) {
	currentLevel := log.GetLevel()
	newLevel := log.InfoLevel
	if cfg != nil && cfg.Debug {
		newLevel = log.DebugLevel
	}
	if currentLevel != newLevel {
		log.SetLevel(newLevel)
		log.Debugf("log level changed from %s to %s", currentLevel, newLevel)
	}
}

// ConfigureLogOutput routes the shared logger to rotating files under
// cfg.LogsDir when file logging is enabled, and back to stdout otherwise.
func ConfigureLogOutput(cfg *config.Config) error {
	Init()

	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	if cfg == nil || !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("logging: create log directory: %w", err)
	}
	logWriter = &lumberjack.Logger{
		Filename: filepath.Join(cfg.LogsDir, "main.log"),
		MaxSize:  10, // MB per file before rotation
	}
	log.SetOutput(logWriter)
	return nil
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
