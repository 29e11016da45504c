package logging

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/restream-tools/restreamctl/internal/buildinfo"
	"github.com/restream-tools/restreamctl/internal/executor"
	"github.com/restream-tools/restreamctl/internal/util"
)

var wireLogID atomic.Uint64

// formSecretRe matches credential-bearing fields in an URL-encoded form
// body. Longer field names come first so code_verifier is not cut at code.
var formSecretRe = regexp.MustCompile(`(client_secret|refresh_token|code_verifier|code)=([^&\s]+)`)

// FileWireLogger dumps each HTTP exchange the executor performs into its
// own file so failed calls can be replayed and inspected offline. Response
// bodies are decompressed according to their Content-Encoding before
// writing; credentials in headers are masked.
type FileWireLogger struct {
	enabled bool
	dir     string
}

// NewFileWireLogger creates a wire logger writing under dir. A disabled
// logger swallows exchanges without touching the filesystem.
func NewFileWireLogger(enabled bool, dir string) *FileWireLogger {
	return &FileWireLogger{enabled: enabled, dir: dir}
}

// IsEnabled reports whether exchanges are being written.
func (l *FileWireLogger) IsEnabled() bool {
	return l != nil && l.enabled
}

// LogExchange writes one request/response round trip. Errors are logged,
// never propagated; a broken wire dump must not fail the API call it
// records.
func (l *FileWireLogger) LogExchange(x executor.Exchange) {
	if !l.IsEnabled() {
		return
	}
	if err := l.writeExchange(x); err != nil {
		log.WithError(err).Warn("wire log: failed to write exchange")
	}
}

func (l *FileWireLogger) writeExchange(x executor.Exchange) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create wire log directory: %w", err)
	}

	filePath := filepath.Join(l.dir, l.generateFilename(x))
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create wire log file: %w", err)
	}

	writeErr := writeExchangeSections(file, x)
	if errClose := file.Close(); errClose != nil && writeErr == nil {
		writeErr = errClose
	}
	return writeErr
}

func writeExchangeSections(w io.Writer, x executor.Exchange) error {
	var dump bytes.Buffer

	fmt.Fprintf(&dump, "=== REQUEST ===\n")
	fmt.Fprintf(&dump, "Version: %s\n", buildinfo.Version)
	fmt.Fprintf(&dump, "URL: %s\n", util.MaskTokenQuery(x.URL))
	fmt.Fprintf(&dump, "Method: %s\n", x.Method)
	fmt.Fprintf(&dump, "Attempt: %d\n", x.Attempt+1)
	fmt.Fprintf(&dump, "Timestamp: %s\n\n", time.Now().Format(time.RFC3339Nano))

	if len(x.RequestHeader) > 0 {
		fmt.Fprintf(&dump, "=== REQUEST HEADERS ===\n")
		for key, values := range x.RequestHeader {
			for _, value := range values {
				fmt.Fprintf(&dump, "%s: %s\n", key, util.MaskSensitiveHeaderValue(key, value))
			}
		}
		dump.WriteByte('\n')
	}

	fmt.Fprintf(&dump, "=== REQUEST BODY ===\n")
	dump.Write(maskFormSecrets(x.RequestBody))
	dump.WriteString("\n\n")

	fmt.Fprintf(&dump, "=== RESPONSE ===\n")
	if x.Err != nil {
		fmt.Fprintf(&dump, "Error: %v\n", x.Err)
	}
	if x.StatusCode != 0 {
		fmt.Fprintf(&dump, "Status: %d\n", x.StatusCode)
	}
	fmt.Fprintf(&dump, "Duration: %s\n", x.Duration.Round(time.Microsecond))
	for key, values := range x.Header {
		for _, value := range values {
			fmt.Fprintf(&dump, "%s: %s\n", key, value)
		}
	}
	dump.WriteByte('\n')

	body, decompressErr := decompressBody(x.Header, x.Body)
	if decompressErr != nil {
		body = x.Body
	}
	dump.Write(body)
	if decompressErr != nil {
		fmt.Fprintf(&dump, "\n[DECOMPRESSION ERROR: %v]", decompressErr)
	}
	dump.WriteByte('\n')

	_, err := w.Write(dump.Bytes())
	return err
}

// maskFormSecrets hides credential-bearing form fields in a dumped request
// body. Token endpoint posts carry refresh tokens and client secrets.
func maskFormSecrets(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	return formSecretRe.ReplaceAllFunc(body, func(match []byte) []byte {
		field, value, _ := bytes.Cut(match, []byte("="))
		masked := make([]byte, 0, len(field)+1+len(value))
		masked = append(masked, field...)
		masked = append(masked, '=')
		return append(masked, util.MaskSecret(string(value))...)
	})
}

// generateFilename builds a sanitized per-exchange file name.
// Format: v2-user-profile-2026-08-25T195811-a1b2c3d4.log
func (l *FileWireLogger) generateFilename(x executor.Exchange) string {
	path := x.URL
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
	}
	if idx := strings.Index(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}

	id := x.RequestID
	if id == "" {
		id = fmt.Sprintf("%d", wireLogID.Add(1))
	}
	stamp := time.Now().Format("2006-01-02T150405")
	return fmt.Sprintf("%s-%s-%s.log", sanitizeForFilename(path), stamp, id)
}

// sanitizeForFilename maps a URL path to a filename-safe chunk: letters,
// digits, dots, and underscores survive, every other run collapses to one
// dash.
func sanitizeForFilename(path string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "root"
	}
	return b.String()
}

// decompressBody undoes the response Content-Encoding so dumps stay
// readable. Unknown encodings pass through untouched.
func decompressBody(headers map[string][]string, body []byte) ([]byte, error) {
	if len(headers) == 0 || len(body) == 0 {
		return body, nil
	}

	encoding := ""
	for key, values := range headers {
		if strings.EqualFold(key, "content-encoding") && len(values) > 0 {
			encoding = strings.ToLower(values[0])
			break
		}
	}

	var (
		reader io.Reader
		closer = func() {}
	)
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		reader, closer = gz, func() { _ = gz.Close() }
	case "deflate":
		fl := flate.NewReader(bytes.NewReader(body))
		reader, closer = fl, func() { _ = fl.Close() }
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		reader, closer = dec, dec.Close
	default:
		return body, nil
	}
	defer closer()

	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompress %s body: %w", encoding, err)
	}
	return plain, nil
}
