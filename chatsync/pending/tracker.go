// Package pending tracks locally composed messages until the server confirms
// them.
package pending

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eoncord/chatsync-go/chatsync"
)

// Tracker issues temporary ids and records the lifecycle of every pending
// message it created. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]chatsync.Pending
	issued  map[string]struct{}

	now    func() time.Time
	newID  func() string
	maxLen int
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator replaces the random temporary id generator.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) { t.newID = gen }
}

// WithMaxContentLength sets the content ceiling enforced by Create.
func WithMaxContentLength(n int) Option {
	return func(t *Tracker) { t.maxLen = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries: make(map[string]chatsync.Pending),
		issued:  make(map[string]struct{}),
		now:     time.Now,
		newID:   uuid.NewString,
		maxLen:  chatsync.DefaultMaxContentLength,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = chatsync.LoggerOrDiscard(t.logger)
	return t
}

// Create validates a draft and records a new pending message for it. The
// caller inserts the returned value into the conversation timeline.
//
// Create panics if the id generator returns an id it has issued before.
func (t *Tracker) Create(conversationID, content string, attachments []chatsync.Attachment, author chatsync.Author) (chatsync.Pending, error) {
	body, err := chatsync.ValidateDraft(content, attachments, t.maxLen)
	if err != nil {
		return chatsync.Pending{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.newID()
	if _, dup := t.issued[id]; dup {
		panic(fmt.Sprintf("pending: temporary id %q issued twice", id))
	}
	t.issued[id] = struct{}{}

	p := chatsync.Pending{
		TemporaryID:    id,
		ConversationID: conversationID,
		Author:         author,
		Content:        body,
		Attachments:    append([]chatsync.Attachment(nil), attachments...),
		CreatedAt:      t.now(),
		State:          chatsync.LifecyclePending,
	}
	t.entries[id] = p
	t.logger.Debug("pending message created", "temporary_id", id, "conversation", conversationID)
	return p, nil
}

// Resolve removes the entry for temporaryID once its confirmation arrived.
// An unknown id is a no-op and reports false.
func (t *Tracker) Resolve(temporaryID string, confirmed chatsync.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[temporaryID]; !ok {
		return false
	}
	delete(t.entries, temporaryID)
	t.logger.Debug("pending message resolved", "temporary_id", temporaryID, "id", confirmed.ID)
	return true
}

// MarkSent records that the push channel accepted the message.
func (t *Tracker) MarkSent(temporaryID string) bool {
	return t.transition(temporaryID, chatsync.LifecycleSent)
}

// MarkFailed records a delivery failure. The entry is kept so it can be
// retried or discarded.
func (t *Tracker) MarkFailed(temporaryID string) bool {
	return t.transition(temporaryID, chatsync.LifecycleFailed)
}

// MarkRetrying moves a failed entry back to pending and returns it. It
// reports false when the entry is unknown or not failed.
func (t *Tracker) MarkRetrying(temporaryID string) (chatsync.Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[temporaryID]
	if !ok || p.State != chatsync.LifecycleFailed {
		return chatsync.Pending{}, false
	}
	p.State = chatsync.LifecyclePending
	t.entries[temporaryID] = p
	return p, true
}

func (t *Tracker) transition(temporaryID string, state chatsync.Lifecycle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[temporaryID]
	if !ok {
		return false
	}
	p.State = state
	t.entries[temporaryID] = p
	return true
}

// Discard forgets an entry without a confirmation. The id is never reissued.
func (t *Tracker) Discard(temporaryID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[temporaryID]; !ok {
		return false
	}
	delete(t.entries, temporaryID)
	return true
}

// Get returns the entry for temporaryID.
func (t *Tracker) Get(temporaryID string) (chatsync.Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.entries[temporaryID]
	return p, ok
}

// DropConversation forgets every entry of a conversation and returns how
// many were removed.
func (t *Tracker) DropConversation(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, p := range t.entries {
		if p.ConversationID == conversationID {
			delete(t.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of unresolved entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
