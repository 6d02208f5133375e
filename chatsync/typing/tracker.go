// Package typing tracks who is typing in each conversation and throttles the
// local user's typing notifications.
package typing

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eoncord/chatsync-go/chatsync"
)

const (
	// DefaultTTL is how long a typing entry lives without a refresh.
	DefaultTTL = 1500 * time.Millisecond

	// DefaultThrottle is the minimum interval between local typing events.
	DefaultThrottle = 2 * time.Second
)

// Sender carries local typing events. *chatsync.Client satisfies it.
type Sender interface {
	Connected() bool
	Send(ctx context.Context, eventType string, payload any) error
}

// Entry is one user currently typing.
type Entry struct {
	UserID      string
	DisplayName string
	ExpiresAt   time.Time
}

// Options configures a Tracker.
type Options struct {
	// Self is the local user. Remote events about Self are ignored and local
	// events are sent on its behalf.
	Self     chatsync.TypingUser
	TTL      time.Duration
	Throttle time.Duration
	Sender   Sender
	Now      func() time.Time
	Logger   *slog.Logger
}

// Tracker holds typing entries keyed by conversation and user. Expired
// entries are dropped lazily on read and by Sweep.
type Tracker struct {
	self     chatsync.TypingUser
	ttl      time.Duration
	throttle time.Duration
	sender   Sender
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	entries  map[string]map[string]Entry
	limiters map[string]*rate.Limiter
}

// NewTracker creates a tracker. Zero durations select the defaults.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		self:     opts.Self,
		ttl:      opts.TTL,
		throttle: opts.Throttle,
		sender:   opts.Sender,
		now:      opts.Now,
		logger:   chatsync.LoggerOrDiscard(opts.Logger),
		entries:  make(map[string]map[string]Entry),
		limiters: make(map[string]*rate.Limiter),
	}
	if t.ttl <= 0 {
		t.ttl = DefaultTTL
	}
	if t.throttle <= 0 {
		t.throttle = DefaultThrottle
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// NoteRemote inserts or refreshes the entry of userID. It reports false for
// the local user.
func (t *Tracker) NoteRemote(conversationID, userID, displayName string) bool {
	if userID == "" || userID == t.self.ID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.entries[conversationID]
	if !ok {
		users = make(map[string]Entry)
		t.entries[conversationID] = users
	}
	users[userID] = Entry{
		UserID:      userID,
		DisplayName: displayName,
		ExpiresAt:   t.now().Add(t.ttl),
	}
	return true
}

// Stop removes the entry of userID, as on an explicit stop event.
func (t *Tracker) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.entries[conversationID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	return true
}

// Active returns the unexpired entries of a conversation ordered by display
// name.
func (t *Tracker) Active(conversationID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	users := t.entries[conversationID]
	out := make([]Entry, 0, len(users))
	for id, e := range users {
		if !now.Before(e.ExpiresAt) {
			delete(users, id)
			continue
		}
		out = append(out, e)
	}
	if len(users) == 0 {
		delete(t.entries, conversationID)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := strings.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

// Sweep removes every expired entry and returns how many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for conv, users := range t.entries {
		for id, e := range users {
			if !now.Before(e.ExpiresAt) {
				delete(users, id)
				n++
			}
		}
		if len(users) == 0 {
			delete(t.entries, conv)
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Forget drops all entries and throttle state of a conversation.
func (t *Tracker) Forget(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, conversationID)
	delete(t.limiters, conversationID)
}

// EmitLocal sends a typing-start event for the local user, at most once per
// throttle interval per conversation. It does nothing when the sender is not
// connected and reports whether an event was sent.
func (t *Tracker) EmitLocal(ctx context.Context, conversationID string) bool {
	if t.sender == nil || !t.sender.Connected() {
		return false
	}

	t.mu.Lock()
	lim, ok := t.limiters[conversationID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.throttle), 1)
		t.limiters[conversationID] = lim
	}
	allowed := lim.AllowN(t.now(), 1)
	t.mu.Unlock()
	if !allowed {
		return false
	}

	err := t.sender.Send(ctx, chatsync.EventTypingStart, chatsync.TypingEvent{
		ConversationID: conversationID,
		User:           t.self,
	})
	if err != nil {
		t.logger.Debug("typing event not sent", "conversation", conversationID, "error", err)
		return false
	}
	return true
}
