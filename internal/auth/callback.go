package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const loginSuccessHTML = `<!DOCTYPE html>
<html><head><title>Login complete</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>Login complete</h2>
<p>You are signed in to Restream. You can close this window and return to the terminal.</p>
</body></html>`

const loginFailureHTML = `<!DOCTYPE html>
<html><head><title>Login failed</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em;">
<h2>Login failed</h2>
<p>%s</p>
</body></html>`

// CallbackResult carries the query parameters delivered to the redirect URI.
type CallbackResult struct {
	Code  string
	State string
	Error string
}

// CallbackServer is a single-use loopback HTTP listener that receives the
// authorization redirect during interactive login and validates its state
// parameter before handing the code back to the caller.
type CallbackServer struct {
	expectedState string

	server   *http.Server
	listener net.Listener
	results  chan *CallbackResult
	errs     chan error

	mu      sync.Mutex
	running bool
}

// NewCallbackServer prepares a callback listener. The expected state must
// match the state embedded in the authorization URL for the redirect to be
// accepted.
func NewCallbackServer(expectedState string) *CallbackServer {
	return &CallbackServer{
		expectedState: expectedState,
		results:       make(chan *CallbackResult, 1),
		errs:          make(chan error, 1),
	}
}

// Start binds 127.0.0.1:port and begins serving the callback endpoint.
// Port 0 picks a free port; RedirectURI reports the bound address.
func (s *CallbackServer) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("callback server is already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("listen on callback port %d: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.listener = listener
	s.server = &http.Server{
		Handler: mux,
		// The redirect is a single tiny GET; anything slower is a stall.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if errServe := s.server.Serve(listener); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			s.errs <- fmt.Errorf("callback server failed: %w", errServe)
		}
	}()

	log.Debugf("callback server listening on %s", listener.Addr())
	return nil
}

// RedirectURI returns the redirect URI registered for this login attempt.
func (s *CallbackServer) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d/callback", s.listener.Addr().(*net.TCPAddr).Port)
}

// WaitForCallback blocks until the redirect arrives, the server fails, or
// the timeout elapses.
func (s *CallbackServer) WaitForCallback(timeout time.Duration) (*CallbackResult, error) {
	select {
	case result := <-s.results:
		if result.Error != "" {
			return nil, fmt.Errorf("authorization was not granted: %s", result.Error)
		}
		return result, nil
	case err := <-s.errs:
		return nil, err
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for the authorization callback")
	}
}

// Stop shuts the listener down. Safe to call after a failed Start.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	result := &CallbackResult{
		Code:  query.Get("code"),
		State: query.Get("state"),
		Error: query.Get("error"),
	}

	switch {
	case result.Error != "":
		log.Errorf("authorization error received: %s", result.Error)
	case result.Code == "":
		result.Error = "no authorization code in callback"
	case s.expectedState != "" && result.State != s.expectedState:
		log.Error("state parameter mismatch in callback")
		result.Error = "state mismatch, possible request forgery"
	}

	s.deliver(result)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprintf(w, loginFailureHTML, result.Error)
		return
	}
	_, _ = w.Write([]byte(loginSuccessHTML))
}

// deliver hands the result over without blocking; late duplicate redirects
// are dropped.
func (s *CallbackServer) deliver(result *CallbackResult) {
	select {
	case s.results <- result:
	default:
		log.Warn("duplicate authorization callback dropped")
	}
}
