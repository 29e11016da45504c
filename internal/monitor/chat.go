package monitor

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultChatURL is the cross-platform chat event socket.
const DefaultChatURL = "wss://chat.api.restream.io/ws"

// Chat-specific event kinds.
const (
	KindChatMessage Kind = "message"
	KindChatJoin    Kind = "join"
	KindChatLeave   Kind = "leave"
)

// classifyChatAction maps chat socket actions to event kinds.
func classifyChatAction(action string) Kind {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "connection_info":
		return KindConnectionInfo
	case "heartbeat":
		return KindHeartbeat
	case "message":
		return KindChatMessage
	case "join":
		return KindChatJoin
	case "leave":
		return KindChatLeave
	default:
		return KindUnknown
	}
}

// ChatMonitor adds a structured message feed on top of the generic
// monitor.
type ChatMonitor struct {
	*Monitor
}

// NewChatMonitor watches the aggregated chat socket of the account the
// access token belongs to.
func NewChatMonitor(opts Options) *ChatMonitor {
	if opts.URL == "" {
		opts.URL = DefaultChatURL
	}
	opts.Classify = classifyChatAction
	return &ChatMonitor{Monitor: New(opts)}
}

// ChatMessage is one spoken line projected out of a message event.
type ChatMessage struct {
	ID        string
	Username  string
	Text      string
	Platform  string
	Timestamp time.Time
}

// Messages narrows the event feed to chat messages. The channel closes
// when the monitor stops.
func (m *ChatMonitor) Messages() <-chan ChatMessage {
	events := m.Subscribe()
	out := make(chan ChatMessage, m.opts.Buffer)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Kind != KindChatMessage {
				continue
			}
			out <- projectChatMessage(ev)
		}
	}()
	return out
}

// projectChatMessage tolerates the flat and user-nested payload shapes
// seen on the wire. Timestamps may arrive as unix seconds or RFC 3339;
// anything unreadable falls back to the capture time.
func projectChatMessage(ev Event) ChatMessage {
	payload := ev.Payload
	msg := ChatMessage{Timestamp: ev.Timestamp}

	if node := gjson.GetBytes(payload, "id"); node.Exists() {
		msg.ID = node.String()
	} else {
		msg.ID = gjson.GetBytes(payload, "event_id").String()
	}

	for _, path := range []string{"username", "user.username", "user.display_name"} {
		if node := gjson.GetBytes(payload, path); node.Exists() && node.String() != "" {
			msg.Username = node.String()
			break
		}
	}

	if node := gjson.GetBytes(payload, "message"); node.Exists() {
		switch node.Type {
		case gjson.String:
			msg.Text = node.String()
		case gjson.JSON:
			msg.Text = node.Get("text").String()
		}
	}
	if msg.Text == "" {
		msg.Text = gjson.GetBytes(payload, "text").String()
	}

	if node := gjson.GetBytes(payload, "platform"); node.Exists() {
		msg.Platform = node.String()
	} else {
		msg.Platform = gjson.GetBytes(payload, "user.platform").String()
	}

	if node := gjson.GetBytes(payload, "timestamp"); node.Exists() {
		switch node.Type {
		case gjson.Number:
			msg.Timestamp = time.Unix(node.Int(), 0)
		case gjson.String:
			if parsed, err := time.Parse(time.RFC3339, node.String()); err == nil {
				msg.Timestamp = parsed
			}
		}
	}
	return msg
}
