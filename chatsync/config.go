package chatsync

import (
	"context"
	"time"
)

// Conn is a connected push channel that exchanges JSON frames.
type Conn interface {
	Read(ctx context.Context, v any) error
	Write(ctx context.Context, v any) error
	Close(reason string) error
}

// DialFunc opens a Conn to url. Token is the bearer credential, empty when
// unauthenticated.
type DialFunc func(ctx context.Context, url, token string) (Conn, error)

// Config controls how the client connects.
type Config struct {
	URL              string
	Token            string // bearer token sent on the upgrade request
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 waits for frames forever
	WriteTimeout     time.Duration

	// ReconnectDelay is the fixed wait before each automatic reconnect.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive automatic reconnects.
	// 0 disables automatic reconnection.
	MaxReconnectAttempts int

	// Dial overrides the websocket dialer.
	Dial DialFunc
}

// DefaultConfig returns sensible defaults. URL must still be set.
// Set a timeout to 0 to disable it.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 10,
	}
}
