package chatsync

// MessageCreate asks the server to persist a new message.
type MessageCreate struct {
	ConversationID string       `json:"conversationId"`
	AuthorID       string       `json:"authorId"`
	Content        string       `json:"content"`
	TemporaryID    string       `json:"temporaryId"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// MessageCreated is broadcast once a message is persisted. TemporaryID is
// set only on the echo to the client that created it.
type MessageCreated struct {
	Message
	TemporaryID string `json:"temporaryId,omitempty"`
}

// MessageUpdate asks the server to edit a message.
type MessageUpdate struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// MessageDelete asks the server to delete a message; the same shape is
// broadcast as message:deleted.
type MessageDelete struct {
	MessageID string `json:"messageId"`
}

// TypingUser identifies who is typing.
type TypingUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// TypingEvent is sent in both directions as typing:start and typing:stop.
type TypingEvent struct {
	ConversationID string     `json:"conversationId"`
	User           TypingUser `json:"user"`
}

// ReactionEvent is sent in both directions as reaction:add and
// reaction:remove.
type ReactionEvent struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

// PresenceStatus is a user's availability.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusIdle    PresenceStatus = "idle"
	StatusDND     PresenceStatus = "dnd"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEvent is sent as presence:set and received as presence:update.
type PresenceEvent struct {
	UserID       string         `json:"userId"`
	Status       PresenceStatus `json:"status"`
	CustomStatus string         `json:"customStatus,omitempty"`
}
