package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitMessage(t *testing.T, ch <-chan ChatMessage) ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "message channel closed before the expected message")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a chat message")
		return ChatMessage{}
	}
}

func TestChatMessagesNarrowsTheFeed(t *testing.T) {
	s := newWSServer(t)
	m := NewChatMonitor(Options{URL: s.URL, Reconnect: fastPolicy()})
	messages := m.Messages()
	startMonitor(t, m.Monitor)

	ac := s.accept(t)
	send(t, ac.conn, `{"action":"heartbeat"}`)
	send(t, ac.conn, `{"action":"join","payload":{"username":"lurker"}}`)
	send(t, ac.conn, `{"action":"message","payload":{"id":"m1","username":"alice","text":"hello","platform":"twitch","timestamp":1767225600}}`)
	send(t, ac.conn, `{"action":"message","payload":{"event_id":"m2","user":{"username":"bob","platform":"youtube"},"message":{"text":"hey"}}}`)

	msg := waitMessage(t, messages)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "alice", msg.Username)
	require.Equal(t, "hello", msg.Text)
	require.Equal(t, "twitch", msg.Platform)
	require.EqualValues(t, 1767225600, msg.Timestamp.Unix())

	msg = waitMessage(t, messages)
	require.Equal(t, "m2", msg.ID)
	require.Equal(t, "bob", msg.Username)
	require.Equal(t, "hey", msg.Text)
	require.Equal(t, "youtube", msg.Platform)

	m.Stop()
	_, ok := <-messages
	require.False(t, ok, "message channel must close when the monitor stops")
}

func TestProjectChatMessage(t *testing.T) {
	captured := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload string
		want    ChatMessage
	}{
		{
			name:    "flat shape",
			payload: `{"id":"m1","username":"alice","text":"hi","platform":"twitch","timestamp":1767225600}`,
			want:    ChatMessage{ID: "m1", Username: "alice", Text: "hi", Platform: "twitch", Timestamp: time.Unix(1767225600, 0)},
		},
		{
			name:    "nested user and message object",
			payload: `{"event_id":"m2","user":{"username":"bob","platform":"youtube"},"message":{"text":"yo"}}`,
			want:    ChatMessage{ID: "m2", Username: "bob", Text: "yo", Platform: "youtube", Timestamp: captured},
		},
		{
			name:    "display name fallback",
			payload: `{"id":"m3","user":{"display_name":"Carol D","platform":"facebook"},"message":"plain words"}`,
			want:    ChatMessage{ID: "m3", Username: "Carol D", Text: "plain words", Platform: "facebook", Timestamp: captured},
		},
		{
			name:    "rfc3339 timestamp",
			payload: `{"id":"m4","username":"dee","text":"tick","timestamp":"2026-03-01T12:30:00Z"}`,
			want:    ChatMessage{ID: "m4", Username: "dee", Text: "tick", Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
		},
		{
			name:    "unreadable timestamp keeps capture time",
			payload: `{"id":"m5","username":"eve","text":"late","timestamp":"yesterday-ish"}`,
			want:    ChatMessage{ID: "m5", Username: "eve", Text: "late", Timestamp: captured},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := projectChatMessage(Event{
				Kind:      KindChatMessage,
				Payload:   []byte(tt.payload),
				Timestamp: captured,
			})
			require.Equal(t, tt.want.ID, got.ID)
			require.Equal(t, tt.want.Username, got.Username)
			require.Equal(t, tt.want.Text, got.Text)
			require.Equal(t, tt.want.Platform, got.Platform)
			require.True(t, got.Timestamp.Equal(tt.want.Timestamp),
				"timestamp = %v, want %v", got.Timestamp, tt.want.Timestamp)
		})
	}
}

func TestClassifyChatAction(t *testing.T) {
	tests := []struct {
		action string
		want   Kind
	}{
		{"connection_info", KindConnectionInfo},
		{"heartbeat", KindHeartbeat},
		{"message", KindChatMessage},
		{"join", KindChatJoin},
		{"leave", KindChatLeave},
		{" Message ", KindChatMessage},
		{"reaction", KindUnknown},
	}
	for _, tt := range tests {
		if got := classifyChatAction(tt.action); got != tt.want {
			t.Errorf("classifyChatAction(%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}
