// Package restream exposes the typed surface of the Restream REST API on
// top of the token lifecycle and the retrying request executor.
package restream

// Profile describes the authenticated account.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ChannelSummary is the trimmed channel shape returned by the list
// endpoint.
type ChannelSummary struct {
	ID                  int64  `json:"id"`
	StreamingPlatformID int64  `json:"streamingPlatformId"`
	EmbedURL            string `json:"embedUrl"`
	URL                 string `json:"url"`
	Identifier          string `json:"identifier"`
	DisplayName         string `json:"displayName"`
	Enabled             bool   `json:"enabled"`
}

// Channel is the detailed shape of a single channel. The wire casing
// differs from the list endpoint.
type Channel struct {
	ID                int64   `json:"id"`
	UserID            int64   `json:"user_id"`
	ServiceID         int64   `json:"service_id"`
	ChannelIdentifier string  `json:"channel_identifier"`
	ChannelURL        string  `json:"channel_url"`
	EventIdentifier   *string `json:"event_identifier"`
	EventURL          *string `json:"event_url"`
	Embed             string  `json:"embed"`
	Active            bool    `json:"active"`
	DisplayName       string  `json:"display_name"`
}

// ChannelMeta carries the editable title and description of a channel.
type ChannelMeta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// EventDestination names one channel a stream event publishes to.
type EventDestination struct {
	ChannelID           int64   `json:"channelId"`
	ExternalURL         *string `json:"externalUrl"`
	StreamingPlatformID int64   `json:"streamingPlatformId"`
}

// StreamEvent describes a scheduled, running, or finished stream.
// Timestamps are unix seconds and null until known.
type StreamEvent struct {
	ID           string             `json:"id"`
	ShowID       *string            `json:"showId"`
	Status       string             `json:"status"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	IsInstant    bool               `json:"isInstant"`
	IsRecordOnly bool               `json:"isRecordOnly"`
	CoverURL     *string            `json:"coverUrl"`
	ScheduledFor *int64             `json:"scheduledFor"`
	StartedAt    *int64             `json:"startedAt"`
	FinishedAt   *int64             `json:"finishedAt"`
	Destinations []EventDestination `json:"destinations"`
}

// EventsPagination reports the page window of a history response.
type EventsPagination struct {
	PagesTotal int `json:"pages_total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
}

// EventsHistory is the paginated response of the events history endpoint.
type EventsHistory struct {
	Items      []StreamEvent    `json:"items"`
	Pagination EventsPagination `json:"pagination"`
}

// StreamKey is an RTMP publishing key, either account-wide or per event.
type StreamKey struct {
	StreamKey string `json:"streamKey"`
}

// PlatformImage holds the artwork variants of a platform.
type PlatformImage struct {
	PNG string `json:"png"`
	SVG string `json:"svg"`
}

// Platform describes a streaming platform supported by the service.
type Platform struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Image    *PlatformImage `json:"image,omitempty"`
	AltImage *PlatformImage `json:"altImage,omitempty"`
}

// IngestServer describes an RTMP ingest location.
type IngestServer struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	RTMPURL   string  `json:"rtmpUrl"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
