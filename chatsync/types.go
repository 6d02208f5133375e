package chatsync

import "encoding/json"

// Push channel event types.
const (
	EventMessageCreate  = "message:create"
	EventMessageCreated = "message:created"
	EventMessageUpdate  = "message:update"
	EventMessageUpdated = "message:updated"
	EventMessageDelete  = "message:delete"
	EventMessageDeleted = "message:deleted"
	EventTypingStart    = "typing:start"
	EventTypingStop     = "typing:stop"
	EventReactionAdd    = "reaction:add"
	EventReactionRemove = "reaction:remove"
	EventPresenceSet    = "presence:set"
	EventPresenceUpdate = "presence:update"

	// EventError carries a ProtocolError payload from the server.
	EventError = "error"

	// EventAny subscribes a handler to every incoming event.
	EventAny = "*"
)

// Outgoing is the envelope client -> server.
type Outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event is the envelope server -> client.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ProtocolError describes an error frame sent by the server.
type ProtocolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

// Decode unmarshals the event payload into v.
func (ev Event) Decode(v any) error {
	if len(ev.Payload) == 0 {
		return NewError(ErrorSerialization, "empty payload for "+ev.Type)
	}
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return WrapError(ErrorSerialization, "failed to unmarshal "+ev.Type+" payload", err)
	}
	return nil
}
