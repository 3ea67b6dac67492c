package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// invalidOperation is the text frame the server sends when it rejects a
// command or control frame. It carries no market data.
var invalidOperation = []byte("INVALID OPERATION")

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// subscribeFrame is the subscribe command for the market channel.
type subscribeFrame struct {
	Type                 string   `json:"type"`
	AssetsIDs            []string `json:"assets_ids"`
	CustomFeatureEnabled bool     `json:"custom_feature_enabled"`
}

// unsubscribeFrame is the unsubscribe command for the market channel.
// Unlike subscribe, the server takes no custom_feature_enabled field here.
type unsubscribeFrame struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://ws-subscriptions-clob.polymarket.com/ws/market)
	PingTimeout  time.Duration // Max time without a server ping before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults. The server pings every 30
// seconds, so a 60 second timeout tolerates one missed ping.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerConfig configures the feed Manager.
type ManagerConfig struct {
	URL          string        // WebSocket URL for the market channel
	PingTimeout  time.Duration // Passed through to the underlying client
	WriteTimeout time.Duration // Passed through to the underlying client
	ReconnectMin time.Duration // Base wait time for reconnection
	ReconnectMax time.Duration // Max wait time for reconnection
	BufferSize   int           // Buffer size for the output message channel
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReconnectMin: 1 * time.Second,
		ReconnectMax: 30 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerStats is a snapshot of manager counters.
type ManagerStats struct {
	Connected  bool  // whether the connection is currently up
	Subscribed int   // instruments on the live subscription
	Messages   int64 // data messages forwarded downstream
	Dropped    int64 // messages dropped on a full output buffer
	Reconnects int64 // successful reconnections
}
