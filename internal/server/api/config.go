package api

import "time"

type Config struct {
	// RefreshRate is the number of manual refreshes allowed per second for each collection.
	// Zero disables the limit.
	RefreshRate  float64 `conf:"refresh_rate" yaml:"refresh_rate" json:"refresh_rate"`
	RefreshBurst int     `conf:"refresh_burst" yaml:"refresh_burst" json:"refresh_burst"`

	// StreamHeartbeat is the keep-alive interval of the SSE and WebSocket streams. Defaults to 15s.
	StreamHeartbeat time.Duration `conf:"stream_heartbeat" yaml:"stream_heartbeat" json:"stream_heartbeat"`

	// WebSocketOrigins lists the origins allowed to open a WebSocket stream.
	// Empty means same origin only, "*" allows any origin.
	WebSocketOrigins []string `conf:"websocket_origins" yaml:"websocket_origins" json:"websocket_origins"`
}

const defaultStreamHeartbeat = 15 * time.Second

func (c Config) heartbeat() time.Duration {
	if c.StreamHeartbeat > 0 {
		return c.StreamHeartbeat
	}

	return defaultStreamHeartbeat
}
