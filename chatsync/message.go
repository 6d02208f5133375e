package chatsync

import (
	"time"
)

// Author is the denormalized snapshot of a message author at send time.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarRef   string `json:"avatar,omitempty"`
}

// Attachment is a file uploaded before the message that references it.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// Message is a server-confirmed chat message.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Author         Author       `json:"author"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	EditedAt       *time.Time   `json:"editedAt,omitempty"`
}

// Lifecycle is the client-only state of a pending message.
type Lifecycle int

const (
	// LifecyclePending means the message exists locally only.
	LifecyclePending Lifecycle = iota

	// LifecycleSent means the push channel accepted the message and its
	// confirmation has not arrived yet.
	LifecycleSent

	// LifecycleFailed means delivery failed; the entry stays visible until
	// the user retries or discards it.
	LifecycleFailed
)

// String returns the string representation of a Lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case LifecyclePending:
		return "pending"
	case LifecycleSent:
		return "sent"
	case LifecycleFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one element of a conversation sequence. It is either a Pending
// or a Confirmed value; use a type switch to tell them apart.
type Entry interface {
	// Key returns the temporary id of a pending entry or the id of a
	// confirmed one.
	Key() string
	// Created returns the ordering timestamp.
	Created() time.Time
	// Conversation returns the owning conversation id.
	Conversation() string
	// AuthorID returns the id of the author.
	AuthorID() string
	// Body returns the text content.
	Body() string

	entry()
}

// Pending is a locally composed message not yet confirmed by the server.
type Pending struct {
	TemporaryID    string
	ConversationID string
	Author         Author
	Content        string
	Attachments    []Attachment
	CreatedAt      time.Time
	State          Lifecycle
}

func (p Pending) Key() string          { return p.TemporaryID }
func (p Pending) Created() time.Time   { return p.CreatedAt }
func (p Pending) Conversation() string { return p.ConversationID }
func (p Pending) AuthorID() string     { return p.Author.ID }
func (p Pending) Body() string         { return p.Content }
func (Pending) entry()                 {}

// Confirmed wraps a server-confirmed message.
type Confirmed struct {
	Message Message
}

func (c Confirmed) Key() string          { return c.Message.ID }
func (c Confirmed) Created() time.Time   { return c.Message.CreatedAt }
func (c Confirmed) Conversation() string { return c.Message.ConversationID }
func (c Confirmed) AuthorID() string     { return c.Message.Author.ID }
func (c Confirmed) Body() string         { return c.Message.Content }
func (Confirmed) entry()                 {}

var (
	_ Entry = Pending{}
	_ Entry = Confirmed{}
)
