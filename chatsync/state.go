package chatsync

// ConnectionState represents the current state of the push channel.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected. A reconnect may
	// be scheduled.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the client is connected and ready.
	StateConnected
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change event.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
	Error    error // Optional error that caused the state change
}
