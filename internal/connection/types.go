package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyRunning   = errors.New("supervisor already running")
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ChannelID identifies one of the two logical channels.
type ChannelID uint8

const (
	ChannelNotifications ChannelID = iota
	ChannelUserUpdates

	channelCount = 2
)

// Channels lists every channel in index order.
var Channels = [channelCount]ChannelID{ChannelNotifications, ChannelUserUpdates}

func (c ChannelID) String() string {
	switch c {
	case ChannelNotifications:
		return "notifications"
	case ChannelUserUpdates:
		return "user_updates"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// ConnState is the lifecycle state of a channel.
type ConnState uint8

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText renders the state name in JSON snapshots.
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Channel base URL; the token is appended as ?token=
	Token            string        // Bearer token for this connection
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for control frames
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      75 * time.Second,
		BufferSize:       256,
	}
}

// Snapshot is a point-in-time view of one channel for diagnostics.
type Snapshot struct {
	Channel    string    `json:"channel"`
	State      ConnState `json:"state"`
	RetryCount int       `json:"retry_count"`
	Parked     bool      `json:"parked"`
	Attempts   int64     `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
}
