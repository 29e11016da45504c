// Package executor issues HTTP requests against the Restream API with
// uniform retry, backoff, and error classification, independent of which
// resource a request targets.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/restream-tools/restreamctl/internal/util"
)

// DefaultBaseURL is the versioned REST root of the Restream API.
const DefaultBaseURL = "https://api.restream.io/v2"

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "restreamctl"
)

// RetryConfig controls how transient failures are retried.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int
	// BackoffFactor scales the exponential delay: the wait before retry n
	// (1-based) is BackoffFactor * 2^(n-1) seconds.
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BackoffFactor: 0.5}
}

// Exchange captures one HTTP round trip for debug logging.
type Exchange struct {
	RequestID     string
	Attempt       int
	Method        string
	URL           string
	RequestHeader http.Header
	RequestBody   []byte
	StatusCode    int
	Header        http.Header
	Body          []byte
	Duration      time.Duration
	Err           error
}

// WireLogger receives completed exchanges. Implementations must tolerate
// concurrent calls.
type WireLogger interface {
	LogExchange(x Exchange)
}

// Options configure an Executor. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	Retry     RetryConfig
	WireLog   WireLogger
}

// Executor performs HTTP calls with retry, backoff, and error
// classification. It is safe for concurrent use.
type Executor struct {
	baseURL string
	client  *http.Client
	retry   RetryConfig
	agent   string
	wire    WireLogger

	// sleep waits between attempts; swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Executor from opts, applying defaults for unset fields.
func New(opts Options) *Executor {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := opts.Retry
	if retry.MaxRetries <= 0 && retry.BackoffFactor <= 0 {
		retry = DefaultRetryConfig()
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.BackoffFactor <= 0 {
		retry.BackoffFactor = DefaultRetryConfig().BackoffFactor
	}
	agent := opts.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	client := util.SetProxy(opts.ProxyURL, &http.Client{Timeout: timeout})
	return &Executor{
		baseURL: baseURL,
		client:  client,
		retry:   retry,
		agent:   agent,
		wire:    opts.WireLog,
		sleep:   sleepContext,
	}
}

// Request describes a single API call.
type Request struct {
	Method string
	// Path is joined to the configured base URL; absolute http(s) URLs are
	// used as-is, which is how the OAuth token endpoint is reached.
	Path  string
	Query url.Values
	// Body is sent as JSON when non-empty.
	Body []byte
	// Form is sent URL-encoded when non-empty and takes precedence over Body.
	Form url.Values
	// AuthRequired rejects the call locally when no token is present.
	AuthRequired bool
	Token        string
}

// Do executes req under the configured retry policy and unmarshals the JSON
// response into out when out is non-nil. A 204 or an empty body leaves out
// untouched. Transient failures (HTTP 429/408/5xx and transport errors) are
// retried with exponential backoff; all other failures return immediately.
// Once retries are exhausted the last classified error is returned as-is.
func (e *Executor) Do(ctx context.Context, req Request, out any) error {
	if req.AuthRequired && req.Token == "" {
		return &AuthenticationError{Message: "no access token available, login required"}
	}
	fullURL, err := e.resolveURL(req)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(e.retry.BackoffFactor, attempt)
			log.Debugf("request %s: attempt %d/%d for %s %s after %s",
				reqID, attempt+1, e.retry.MaxRetries+1, req.Method, fullURL, delay)
			if errSleep := e.sleep(ctx, delay); errSleep != nil {
				return errSleep
			}
		}
		status, body, errDo := e.doOnce(ctx, reqID, attempt, req, fullURL)
		if errDo == nil {
			return decodeResponse(status, body, out, fullURL)
		}
		lastErr = errDo
		if !IsTransient(errDo) {
			return errDo
		}
	}
	return lastErr
}

// doOnce performs a single attempt and classifies its outcome.
func (e *Executor) doOnce(ctx context.Context, reqID string, attempt int, req Request, fullURL string) (int, []byte, error) {
	var reqBody []byte
	contentType := ""
	switch {
	case len(req.Form) > 0:
		reqBody = []byte(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case len(req.Body) > 0:
		reqBody = req.Body
		contentType = "application/json"
	}
	var bodyReader io.Reader
	if reqBody != nil {
		bodyReader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", e.agent)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, errDo := e.client.Do(httpReq)
	if errDo != nil {
		netErr := &NetworkError{URL: fullURL, Err: errDo}
		e.logExchange(Exchange{
			RequestID: reqID, Attempt: attempt, Method: req.Method, URL: fullURL,
			RequestHeader: httpReq.Header, RequestBody: reqBody,
			Duration: time.Since(start), Err: netErr,
		})
		return 0, nil, netErr
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return 0, nil, &NetworkError{URL: fullURL, Err: errRead}
	}
	duration := time.Since(start)
	e.logExchange(Exchange{
		RequestID: reqID, Attempt: attempt, Method: req.Method, URL: fullURL,
		RequestHeader: httpReq.Header, RequestBody: reqBody,
		StatusCode: resp.StatusCode, Header: resp.Header,
		Body: respBody, Duration: duration,
	})
	log.Debugf("request %s: %s %s -> %d (%d bytes in %s)",
		reqID, req.Method, fullURL, resp.StatusCode, len(respBody), duration.Round(time.Millisecond))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(respBody),
			Body:       string(respBody),
			URL:        fullURL,
		}
	}
	return resp.StatusCode, respBody, nil
}

func (e *Executor) logExchange(x Exchange) {
	if e.wire == nil {
		return
	}
	e.wire.LogExchange(x)
}

func (e *Executor) resolveURL(req Request) (string, error) {
	full := req.Path
	if !strings.HasPrefix(full, "http://") && !strings.HasPrefix(full, "https://") {
		full = e.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	}
	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("parse request url %q: %w", full, err)
	}
	if len(req.Query) > 0 {
		q := parsed.Query()
		for key, values := range req.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		parsed.RawQuery = q.Encode()
	}
	return parsed.String(), nil
}

// decodeResponse unmarshals a successful body into out. A body that fails to
// parse on a 2xx status is reported, not swallowed.
func decodeResponse(status int, body []byte, out any, fullURL string) error {
	if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			StatusCode: status,
			Message:    fmt.Sprintf("invalid JSON in response body: %v", err),
			Body:       string(body),
			URL:        fullURL,
		}
	}
	return nil
}

// extractErrorMessage pulls the most specific server-supplied message out of
// an error body: error_description, then error.message, then error, then
// message, falling back to the raw body.
func extractErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !gjson.ValidBytes(body) {
		return trimmed
	}
	root := gjson.ParseBytes(body)
	if v := root.Get("error_description"); v.Exists() && v.String() != "" {
		return v.String()
	}
	if v := root.Get("error"); v.Exists() {
		if v.IsObject() {
			if m := v.Get("message"); m.Exists() && m.String() != "" {
				return m.String()
			}
		} else if v.String() != "" {
			return v.String()
		}
	}
	if v := root.Get("message"); v.Exists() && v.String() != "" {
		return v.String()
	}
	return trimmed
}

// backoffDelay computes the wait before retry n (1-based).
func backoffDelay(factor float64, attempt int) time.Duration {
	return time.Duration(factor * float64(time.Second) * math.Pow(2, float64(attempt-1)))
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
