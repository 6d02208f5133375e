// Package presence keeps the last known availability of each user.
package presence

import (
	"sync"
	"time"

	"github.com/eoncord/chatsync-go/chatsync"
)

// Presence is the availability of one user.
type Presence struct {
	UserID       string
	Status       chatsync.PresenceStatus
	CustomStatus string
	UpdatedAt    time.Time
}

// Store holds presence keyed by user id.
type Store struct {
	now func() time.Time

	mu    sync.RWMutex
	users map[string]Presence
}

// NewStore creates an empty store. A nil now selects time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now, users: make(map[string]Presence)}
}

// Apply records a presence event, stamped with the current time.
func (s *Store) Apply(ev chatsync.PresenceEvent) Presence {
	p := Presence{
		UserID:       ev.UserID,
		Status:       ev.Status,
		CustomStatus: ev.CustomStatus,
		UpdatedAt:    s.now(),
	}
	s.mu.Lock()
	s.users[ev.UserID] = p
	s.mu.Unlock()
	return p
}

// Get returns the presence of userID.
func (s *Store) Get(userID string) (Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	return p, ok
}

// Status returns the status of userID, or offline when unknown.
func (s *Store) Status(userID string) chatsync.PresenceStatus {
	if p, ok := s.Get(userID); ok {
		return p.Status
	}
	return chatsync.StatusOffline
}
