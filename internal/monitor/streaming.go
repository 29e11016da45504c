package monitor

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultStreamingURL is the account-level streaming event socket.
const DefaultStreamingURL = "wss://streaming.api.restream.io/ws"

// Streaming-specific event kinds.
const (
	KindStreamStarted Kind = "stream_started"
	KindStreamStopped Kind = "stream_stopped"
	KindMetricsUpdate Kind = "metrics_update"
	KindStatusUpdate  Kind = "status_update"
)

// classifyStreamingAction maps streaming socket actions to event kinds.
// Matching is case-insensitive; anything else is KindUnknown.
func classifyStreamingAction(action string) Kind {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "connection_info":
		return KindConnectionInfo
	case "heartbeat":
		return KindHeartbeat
	case "stream_started":
		return KindStreamStarted
	case "stream_stopped":
		return KindStreamStopped
	case "metrics_update":
		return KindMetricsUpdate
	case "status_update":
		return KindStatusUpdate
	default:
		return KindUnknown
	}
}

// NewStreamingMonitor watches the streaming socket of the account the
// access token belongs to.
func NewStreamingMonitor(opts Options) *Monitor {
	if opts.URL == "" {
		opts.URL = DefaultStreamingURL
	}
	opts.Classify = classifyStreamingAction
	return New(opts)
}

// StreamingMetrics is the measurement block of a metrics update.
type StreamingMetrics struct {
	Bitrate       int64   `json:"bitrate"`
	FPS           float64 `json:"fps"`
	Resolution    string  `json:"resolution"`
	DroppedFrames int64   `json:"dropped_frames"`
	EncodingTime  float64 `json:"encoding_time"`
}

// MetricsFromEvent decodes the metrics carried by a metrics update
// event. It accepts both a nested metrics object and a flat payload.
func MetricsFromEvent(ev Event) (StreamingMetrics, bool) {
	raw := ev.Payload
	if node := gjson.GetBytes(ev.Payload, "metrics"); node.Exists() && node.IsObject() {
		raw = []byte(node.Raw)
	}
	var out StreamingMetrics
	if err := json.Unmarshal(raw, &out); err != nil {
		return StreamingMetrics{}, false
	}
	return out, true
}
