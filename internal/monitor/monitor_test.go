package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// acceptedConn is one server-side websocket together with the handshake
// query it arrived with.
type acceptedConn struct {
	conn  *websocket.Conn
	query url.Values
}

// wsServer accepts websocket handshakes and hands each accepted
// connection to the test over a channel.
type wsServer struct {
	*httptest.Server
	conns chan acceptedConn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan acceptedConn, 8)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- acceptedConn{conn: conn, query: r.URL.Query()}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) accept(t *testing.T) acceptedConn {
	t.Helper()
	select {
	case ac := <-s.conns:
		return ac
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a websocket connection")
		return acceptedConn{}
	}
}

func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}
}

func startMonitor(t *testing.T, m *Monitor) {
	t.Helper()
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed before the expected event")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

func waitError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err, ok := <-ch:
		require.True(t, ok, "error channel closed before the expected error")
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an error")
		return nil
	}
}

func waitDone(t *testing.T, m *Monitor) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the monitor to stop")
	}
}

func TestMonitorDeliversClassifiedEvents(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, AccessToken: "tok-1", Reconnect: fastPolicy()})
	events := m.Subscribe()
	startMonitor(t, m)

	ac := s.accept(t)
	require.Equal(t, "tok-1", ac.query.Get("accessToken"))

	send(t, ac.conn, `{"action":"connection_info","payload":{"connectionId":"c1"}}`)
	send(t, ac.conn, `{"action":"stream_started","payload":{"eventId":"ev1"}}`)
	send(t, ac.conn, `{"action":"metrics_update","payload":{"metrics":{"bitrate":4500,"fps":60,"dropped_frames":2}}}`)

	ev := waitEvent(t, events)
	require.Equal(t, KindConnectionInfo, ev.Kind)
	require.True(t, m.IsConnected())

	ev = waitEvent(t, events)
	require.Equal(t, KindStreamStarted, ev.Kind)
	require.Equal(t, "stream_started", ev.Action)
	require.JSONEq(t, `{"eventId":"ev1"}`, string(ev.Payload))
	require.Contains(t, string(ev.Raw), `"action":"stream_started"`)

	ev = waitEvent(t, events)
	require.Equal(t, KindMetricsUpdate, ev.Kind)
	metrics, ok := MetricsFromEvent(ev)
	require.True(t, ok)
	require.EqualValues(t, 4500, metrics.Bitrate)
	require.EqualValues(t, 60, metrics.FPS)
	require.EqualValues(t, 2, metrics.DroppedFrames)
}

func TestMonitorKeepsUnknownActions(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	events := m.Subscribe()
	startMonitor(t, m)

	send(t, s.accept(t).conn, `{"action":"brand_new_thing","payload":{"x":1}}`)

	ev := waitEvent(t, events)
	require.Equal(t, KindUnknown, ev.Kind)
	require.Equal(t, "brand_new_thing", ev.Action)
	require.JSONEq(t, `{"x":1}`, string(ev.Payload))
}

func TestMonitorSurvivesMalformedFrames(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	events := m.Subscribe()
	startMonitor(t, m)

	ac := s.accept(t)
	require.NoError(t, ac.conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	send(t, ac.conn, `{not json`)
	send(t, ac.conn, `{"action":"heartbeat"}`)

	err := waitError(t, m.Errors())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Contains(t, string(parseErr.Frame), "{not json")

	ev := waitEvent(t, events)
	require.Equal(t, KindHeartbeat, ev.Kind, "the connection must survive a malformed frame")
	require.True(t, m.IsConnected())
}

func TestMonitorBroadcastsInOrder(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	first := m.Subscribe()
	second := m.Subscribe()
	startMonitor(t, m)

	ac := s.accept(t)
	send(t, ac.conn, `{"action":"stream_started"}`)
	send(t, ac.conn, `{"action":"metrics_update"}`)
	send(t, ac.conn, `{"action":"stream_stopped"}`)

	want := []Kind{KindStreamStarted, KindMetricsUpdate, KindStreamStopped}
	for _, sub := range []<-chan Event{first, second} {
		for _, kind := range want {
			require.Equal(t, kind, waitEvent(t, sub).Kind)
		}
	}
}

func TestMonitorStartGuards(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	startMonitor(t, m)
	s.accept(t)

	err := m.Start(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "already started")

	m.Stop()
	waitDone(t, m)
	require.Equal(t, StateStopped, m.State())

	err = m.Start(context.Background())
	require.ErrorAs(t, err, &connErr)
	require.Contains(t, err.Error(), "stopped")
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	events := m.Subscribe()
	startMonitor(t, m)
	s.accept(t)

	m.Stop()
	m.Stop()
	waitDone(t, m)
	require.Equal(t, StateStopped, m.State())

	_, ok := <-events
	require.False(t, ok, "subscriber channels must close on stop")

	late := m.Subscribe()
	_, ok = <-late
	require.False(t, ok, "subscribing after stop must return a closed channel")
}

func TestMonitorStopBeforeStart(t *testing.T) {
	m := NewStreamingMonitor(Options{URL: "ws://127.0.0.1:9", Reconnect: fastPolicy()})
	m.Stop()
	require.Equal(t, StateStopped, m.State())
	waitDone(t, m)
}

func TestMonitorStopDuringDisconnectHandling(t *testing.T) {
	// Holding the state lock parks the read loop right as it reacts to a
	// server-side drop; queueing a Stop behind it before releasing makes
	// the two contend for the same transition. Repeated runs cover both
	// acquisition orders: the monitor must neither revive after Stop nor
	// write to channels Stop closed.
	for i := 0; i < 50; i++ {
		s := newWSServer(t)
		m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
		startMonitor(t, m)
		ac := s.accept(t)

		m.mu.Lock()
		require.NoError(t, ac.conn.Close())
		time.Sleep(2 * time.Millisecond)
		go m.Stop()
		time.Sleep(time.Millisecond)
		m.mu.Unlock()

		waitDone(t, m)
		require.Equal(t, StateStopped, m.State())
		m.Stop()
		for range m.Errors() {
		}
		s.Close()
	}
}

func TestMonitorDurationStopsAutomatically(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{
		URL:       s.URL,
		Duration:  100 * time.Millisecond,
		Reconnect: fastPolicy(),
	})
	startMonitor(t, m)
	s.accept(t)

	waitDone(t, m)
	require.Equal(t, StateStopped, m.State())
}

func TestMonitorReconnectsAfterDrop(t *testing.T) {
	s := newWSServer(t)
	m := NewStreamingMonitor(Options{URL: s.URL, AccessToken: "tok-1", Reconnect: fastPolicy()})
	events := m.Subscribe()
	startMonitor(t, m)

	first := s.accept(t)
	send(t, first.conn, `{"action":"stream_started"}`)
	require.Equal(t, KindStreamStarted, waitEvent(t, events).Kind)

	require.NoError(t, first.conn.Close())

	err := waitError(t, m.Errors())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)

	second := s.accept(t)
	require.Equal(t, "tok-1", second.query.Get("accessToken"), "reconnect must reuse the access token")
	send(t, second.conn, `{"action":"stream_stopped"}`)
	require.Equal(t, KindStreamStopped, waitEvent(t, events).Kind)
	require.True(t, m.IsConnected())
}

func TestMonitorGivesUpAfterMaxAttempts(t *testing.T) {
	s := newWSServer(t)
	policy := fastPolicy()
	policy.MaxAttempts = 2
	m := NewStreamingMonitor(Options{URL: s.URL, Reconnect: policy})
	startMonitor(t, m)

	first := s.accept(t)
	s.Close() // every reconnect attempt will be refused
	require.NoError(t, first.conn.Close())

	waitDone(t, m)
	require.Equal(t, StateStopped, m.State())

	var gaveUp bool
	for err := range m.Errors() {
		if strings.Contains(err.Error(), "gave up after 2 reconnect attempts") {
			gaveUp = true
		}
	}
	require.True(t, gaveUp, "the monitor must report that it exhausted its reconnect attempts")
}

func TestMonitorDialFailureLeavesItStartable(t *testing.T) {
	m := NewStreamingMonitor(Options{URL: "ws://127.0.0.1:9", Reconnect: fastPolicy()})

	err := m.Start(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, StateIdle, m.State())

	// A failed dial must not poison the monitor: the next Start dials
	// again instead of reporting it as already started.
	err = m.Start(context.Background())
	require.ErrorAs(t, err, &connErr)
	require.NotContains(t, err.Error(), "already started")
}

func TestBuildEndpointURL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		token string
		want  string
		fails bool
	}{
		{name: "https to wss", raw: "https://streaming.api.restream.io/ws", token: "tok", want: "wss://streaming.api.restream.io/ws?accessToken=tok"},
		{name: "http to ws", raw: "http://127.0.0.1:8080/ws", token: "tok", want: "ws://127.0.0.1:8080/ws?accessToken=tok"},
		{name: "ws passthrough", raw: "ws://127.0.0.1:8080/ws", token: "tok", want: "ws://127.0.0.1:8080/ws?accessToken=tok"},
		{name: "existing query preserved", raw: "wss://chat.api.restream.io/ws?foo=bar", token: "tok", want: "wss://chat.api.restream.io/ws?accessToken=tok&foo=bar"},
		{name: "no token no parameter", raw: "wss://chat.api.restream.io/ws", want: "wss://chat.api.restream.io/ws"},
		{name: "unsupported scheme", raw: "ftp://example.com/ws", token: "tok", fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildEndpointURL(tt.raw, tt.token)
			if tt.fails {
				if err == nil {
					t.Fatalf("buildEndpointURL(%q) expected error, got %q", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildEndpointURL(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("buildEndpointURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestClassifyStreamingAction(t *testing.T) {
	tests := []struct {
		action string
		want   Kind
	}{
		{"connection_info", KindConnectionInfo},
		{"heartbeat", KindHeartbeat},
		{"stream_started", KindStreamStarted},
		{"stream_stopped", KindStreamStopped},
		{"metrics_update", KindMetricsUpdate},
		{"status_update", KindStatusUpdate},
		{" Stream_Started ", KindStreamStarted},
		{"something_else", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := classifyStreamingAction(tt.action); got != tt.want {
			t.Errorf("classifyStreamingAction(%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestMetricsFromEvent(t *testing.T) {
	nested := Event{Payload: []byte(`{"metrics":{"bitrate":6000,"fps":30.0,"resolution":"1920x1080","dropped_frames":1,"encoding_time":4.2}}`)}
	metrics, ok := MetricsFromEvent(nested)
	if !ok {
		t.Fatal("nested metrics payload did not decode")
	}
	if metrics.Bitrate != 6000 || metrics.Resolution != "1920x1080" || metrics.EncodingTime != 4.2 {
		t.Errorf("unexpected nested metrics: %+v", metrics)
	}

	flat := Event{Payload: []byte(`{"bitrate":2500,"fps":60}`)}
	metrics, ok = MetricsFromEvent(flat)
	if !ok {
		t.Fatal("flat metrics payload did not decode")
	}
	if metrics.Bitrate != 2500 || metrics.FPS != 60 {
		t.Errorf("unexpected flat metrics: %+v", metrics)
	}

	if _, ok = MetricsFromEvent(Event{Payload: []byte(`"nope"`)}); ok {
		t.Error("non-object payload must not decode")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateStopped, "stopped"},
		{State(99), "state(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
