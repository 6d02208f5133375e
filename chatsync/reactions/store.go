// Package reactions keeps per-message reaction aggregates fed by local and
// remote reaction events.
package reactions

import (
	"slices"
	"sync"
)

// Aggregate is the reaction state of one (message, emoji) pair.
type Aggregate struct {
	Emoji       string
	Count       int
	ReactedByMe bool
	Users       []string
}

type aggregate struct {
	emoji string
	users []string
}

type messageReactions struct {
	// aggregates in first-reaction order
	aggregates []*aggregate
}

func (m *messageReactions) find(emoji string) (int, *aggregate) {
	for i, a := range m.aggregates {
		if a.emoji == emoji {
			return i, a
		}
	}
	return -1, nil
}

// Store holds reaction aggregates keyed by message id and emoji. Count is
// the number of distinct participants, so repeated adds by one user are
// idempotent. It is safe for concurrent use.
type Store struct {
	self string

	mu       sync.Mutex
	messages map[string]*messageReactions
}

// NewStore creates an empty store for the local user self.
func NewStore(self string) *Store {
	return &Store{self: self, messages: make(map[string]*messageReactions)}
}

// Add records userID reacting to messageID with emoji, creating the
// aggregate if needed. It reports whether anything changed.
func (s *Store) Add(messageID, emoji, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		m = &messageReactions{}
		s.messages[messageID] = m
	}
	_, a := m.find(emoji)
	if a == nil {
		a = &aggregate{emoji: emoji}
		m.aggregates = append(m.aggregates, a)
	}
	if slices.Contains(a.users, userID) {
		return false
	}
	a.users = append(a.users, userID)
	return true
}

// Remove withdraws userID's reaction. The aggregate is deleted when its
// count reaches zero.
func (s *Store) Remove(messageID, emoji, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return false
	}
	i, a := m.find(emoji)
	if a == nil {
		return false
	}
	j := slices.Index(a.users, userID)
	if j < 0 {
		return false
	}
	a.users = slices.Delete(a.users, j, j+1)
	if len(a.users) == 0 {
		m.aggregates = slices.Delete(m.aggregates, i, i+1)
	}
	if len(m.aggregates) == 0 {
		delete(s.messages, messageID)
	}
	return true
}

// ReactedByMe reports whether the local user reacted to messageID with
// emoji. Callers use it to decide between Add and Remove on a toggle.
func (s *Store) ReactedByMe(messageID, emoji string) bool {
	a, ok := s.Get(messageID, emoji)
	return ok && a.ReactedByMe
}

// Get returns the aggregate of one (message, emoji) pair.
func (s *Store) Get(messageID, emoji string) (Aggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return Aggregate{}, false
	}
	_, a := m.find(emoji)
	if a == nil {
		return Aggregate{}, false
	}
	return s.export(a), true
}

// For returns the aggregates of a message in first-reaction order.
func (s *Store) For(messageID string) []Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	out := make([]Aggregate, len(m.aggregates))
	for i, a := range m.aggregates {
		out[i] = s.export(a)
	}
	return out
}

// DropMessage removes every aggregate of a deleted message.
func (s *Store) DropMessage(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, messageID)
}

// Reset removes everything.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.messages)
}

func (s *Store) export(a *aggregate) Aggregate {
	return Aggregate{
		Emoji:       a.emoji,
		Count:       len(a.users),
		ReactedByMe: slices.Contains(a.users, s.self),
		Users:       slices.Clone(a.users),
	}
}
