// Package monitor implements a reconnect-capable websocket event channel.
// One generic state machine is specialized per event domain by an endpoint
// URL and a classification function; see streaming.go and chat.go.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Kind labels a classified inbound event.
type Kind string

// Kinds shared by every monitor flavor.
const (
	KindConnectionInfo Kind = "connection_info"
	KindHeartbeat      Kind = "heartbeat"
	KindUnknown        Kind = "unknown"
)

// Event is one classified frame from the socket. Actions that match no
// known kind classify as KindUnknown; Raw always carries the full frame
// so nothing is lost when the service grows new event kinds.
type Event struct {
	Kind      Kind
	Action    string
	Payload   []byte
	Raw       []byte
	Timestamp time.Time
}

// Classifier maps a wire action to an event kind. It must be a pure
// function and must map unrecognized actions to KindUnknown.
type Classifier func(action string) Kind

// State of a monitor instance.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReconnectPolicy bounds the backoff loop that follows an unexpected
// disconnect. Delays double per attempt up to MaxDelay. MaxAttempts < 0
// retries without bound; 0 selects the default.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultReconnectPolicy retries five times, starting at one second and
// doubling up to thirty.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
	}
}

const defaultSubscriberBuffer = 64

// Options configure one monitor instance.
type Options struct {
	// URL is the websocket endpoint. http(s) schemes are rewritten to
	// ws(s).
	URL string
	// AccessToken is attached to the handshake as the accessToken query
	// parameter. The service has no header-based websocket auth.
	AccessToken string
	// ProxyURL optionally routes the connection through an http, https,
	// or socks5 proxy.
	ProxyURL string
	// Classify labels inbound actions. Nil classifies everything as
	// KindUnknown.
	Classify Classifier
	// Reconnect bounds the backoff loop after an unexpected disconnect.
	Reconnect ReconnectPolicy
	// Duration, when positive, stops the monitor after the given time.
	Duration time.Duration
	// Buffer is the per subscriber channel capacity.
	Buffer int
}

// Monitor owns exactly one socket and one read loop. Events are
// broadcast to every subscriber in arrival order; errors that do not end
// the connection are published on a separate channel.
type Monitor struct {
	opts Options

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	subs  []chan Event
	timer *time.Timer

	writeMu sync.Mutex

	errs chan error
	done chan struct{}
}

// New builds a monitor in the Idle state. Nothing connects until Start.
func New(opts Options) *Monitor {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultSubscriberBuffer
	}
	def := DefaultReconnectPolicy()
	if opts.Reconnect.InitialDelay <= 0 {
		opts.Reconnect.InitialDelay = def.InitialDelay
	}
	if opts.Reconnect.MaxDelay <= 0 {
		opts.Reconnect.MaxDelay = def.MaxDelay
	}
	if opts.Reconnect.Multiplier <= 1 {
		opts.Reconnect.Multiplier = def.Multiplier
	}
	if opts.Reconnect.MaxAttempts == 0 {
		opts.Reconnect.MaxAttempts = def.MaxAttempts
	}
	return &Monitor{
		opts: opts,
		errs: make(chan error, 16),
		done: make(chan struct{}),
	}
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the socket is currently open.
func (m *Monitor) IsConnected() bool {
	return m.State() == StateConnected
}

// Subscribe registers a new event listener. The channel receives every
// event published after the call and is closed when the monitor stops.
// A subscriber that falls more than Buffer events behind loses the
// overflow; order of the delivered events is preserved.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Event, m.opts.Buffer)
	if m.state == StateStopped {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Errors exposes failures that do not stop the monitor: malformed
// frames, lost connections, and failed reconnect attempts. The channel
// closes when the monitor stops.
func (m *Monitor) Errors() <-chan error { return m.errs }

// Done closes once the monitor has fully stopped.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Start opens the socket and launches the read loop. Starting a monitor
// that is already connecting or connected fails without side effects;
// monitors do not restart after Stop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return &ConnectionError{URL: m.opts.URL, Err: errors.New("monitor already started")}
	case StateStopped:
		m.mu.Unlock()
		return &ConnectionError{URL: m.opts.URL, Err: errors.New("monitor is stopped")}
	}
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		_ = conn.Close()
		return &ConnectionError{URL: m.opts.URL, Err: errors.New("monitor stopped during connect")}
	}
	m.conn = conn
	m.state = StateConnected
	if m.opts.Duration > 0 {
		m.timer = time.AfterFunc(m.opts.Duration, m.Stop)
	}
	m.mu.Unlock()

	log.Infof("monitor: connected url=%s", m.opts.URL)
	go m.run(ctx)
	return nil
}

// Stop tears the monitor down: it cancels the duration timer, sends a
// close frame, closes the socket and every subscriber channel, and
// settles in the Stopped state. Safe to call repeatedly and before
// Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	conn := m.conn
	m.conn = nil
	timer := m.timer
	m.timer = nil
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
		log.Infof("monitor: disconnected url=%s reason=stopped", m.opts.URL)
	}
	for _, ch := range subs {
		close(ch)
	}
	close(m.errs)
	close(m.done)
}

// run reads frames until the connection drops, then walks the reconnect
// policy. It always ends in the Stopped state.
func (m *Monitor) run(ctx context.Context) {
	defer m.Stop()

	policy := m.opts.Reconnect
	delay := policy.InitialDelay
	attempts := 0
	for {
		err := m.readLoop()
		if ctx.Err() != nil {
			return
		}

		// The stopped check and the transition back to connecting must
		// share one critical section: a Stop landing between them would
		// be overwritten and its closed channels written to.
		m.mu.Lock()
		if m.state == StateStopped {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		m.state = StateConnecting
		m.mu.Unlock()

		m.publishError(&ConnectionError{URL: m.opts.URL, Err: err})
		log.Warnf("monitor: connection lost url=%s err=%v", m.opts.URL, err)

		reconnected := false
		for policy.MaxAttempts < 0 || attempts < policy.MaxAttempts {
			attempts++
			if !m.sleep(ctx, delay) {
				return
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
			if delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}

			conn, errDial := m.dial(ctx)
			if errDial != nil {
				m.publishError(errDial)
				log.Warnf("monitor: reconnect attempt %d failed url=%s err=%v", attempts, m.opts.URL, errDial)
				continue
			}

			m.mu.Lock()
			if m.state == StateStopped {
				m.mu.Unlock()
				_ = conn.Close()
				return
			}
			m.conn = conn
			m.state = StateConnected
			m.mu.Unlock()

			log.Infof("monitor: reconnected url=%s attempt=%d", m.opts.URL, attempts)
			attempts = 0
			delay = policy.InitialDelay
			reconnected = true
			break
		}
		if !reconnected {
			m.publishError(&ConnectionError{
				URL: m.opts.URL,
				Err: fmt.Errorf("gave up after %d reconnect attempts", policy.MaxAttempts),
			})
			log.Errorf("monitor: giving up url=%s attempts=%d", m.opts.URL, policy.MaxAttempts)
			return
		}
	}
}

// readLoop dispatches text frames until the socket errors out.
func (m *Monitor) readLoop() error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("no open connection")
	}
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frame = bytes.TrimSpace(frame)
		if len(frame) == 0 {
			continue
		}
		m.dispatch(frame)
	}
}

// dispatch classifies one frame and broadcasts it. Malformed frames go
// to the errors channel and the connection keeps running.
func (m *Monitor) dispatch(frame []byte) {
	if !gjson.ValidBytes(frame) {
		m.publishError(&ParseError{Frame: frame})
		return
	}
	action := "unknown"
	if node := gjson.GetBytes(frame, "action"); node.Exists() {
		action = node.String()
	}
	payload := []byte("{}")
	if node := gjson.GetBytes(frame, "payload"); node.Exists() {
		payload = []byte(node.Raw)
	}
	kind := KindUnknown
	if m.opts.Classify != nil {
		kind = m.opts.Classify(action)
	}
	m.broadcast(Event{
		Kind:      kind,
		Action:    action,
		Payload:   payload,
		Raw:       frame,
		Timestamp: time.Now(),
	})
}

func (m *Monitor) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStopped {
		return
	}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			log.Debugf("monitor: subscriber behind, dropping %s event", ev.Kind)
		}
	}
}

func (m *Monitor) publishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStopped {
		return
	}
	select {
	case m.errs <- err:
	default:
		log.Debugf("monitor: error channel full, dropping: %v", err)
	}
}

// sleep waits out a backoff delay unless the context ends or the monitor
// stops first.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
}
