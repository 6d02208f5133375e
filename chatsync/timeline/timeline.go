// Package timeline holds the ordered message sequence of one conversation and
// reconciles pending entries with server-confirmed messages.
package timeline

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/eoncord/chatsync-go/chatsync"
)

// DuplicateWindow bounds how far apart a pending entry and an uncorrelated
// confirmation may be and still be treated as the same message.
const DuplicateWindow = 10 * time.Second

// Snapshot is an immutable view of a timeline. Version increases with every
// change.
type Snapshot struct {
	ConversationID string
	Version        uint64
	Entries        []chatsync.Entry
}

// Len returns the number of entries.
func (s Snapshot) Len() int { return len(s.Entries) }

type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// Timeline is the sequence of one conversation. Entries are kept in
// non-decreasing CreatedAt order, ties in insertion order. Operations never
// fail; unknown ids are ignored.
//
// Subscribers are notified after the internal lock is released, so they may
// call back into the timeline.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	entries        []chatsync.Entry
	byID           map[string]int
	byTemp         map[string]int
	version        uint64

	nextSub uint64
	subs    []subscriber
	logger  *slog.Logger
}

// New creates an empty timeline for conversationID.
func New(conversationID string, logger *slog.Logger) *Timeline {
	return &Timeline{
		conversationID: conversationID,
		byID:           make(map[string]int),
		byTemp:         make(map[string]int),
		logger:         chatsync.LoggerOrDiscard(logger).With("conversation", conversationID),
	}
}

// ConversationID returns the conversation this timeline belongs to.
func (t *Timeline) ConversationID() string { return t.conversationID }

// InsertPending appends a locally composed entry at the tail. An entry whose
// clock is behind the tail is stamped with the tail time. It reports false
// for a duplicate temporary id or a foreign conversation.
func (t *Timeline) InsertPending(p chatsync.Pending) bool {
	return t.mutate(func() bool {
		if !t.owns(p.ConversationID) {
			return false
		}
		if _, ok := t.byTemp[p.TemporaryID]; ok {
			return false
		}
		if n := len(t.entries); n > 0 {
			if tail := t.entries[n-1].Created(); p.CreatedAt.Before(tail) {
				p.CreatedAt = tail
			}
		}
		t.entries = append(t.entries, p)
		t.indexLocked(len(t.entries) - 1)
		return true
	})
}

// Confirm reconciles a server message with the pending entry identified by
// temporaryID. The pending entry is replaced in place unless that would break
// ordering, in which case the confirmed message moves to its ordered slot.
//
// Without a matching temporary id, a trailing pending entry with the same
// author and content within DuplicateWindow is replaced instead; failing
// that the message is inserted in order. A message whose id is already
// present is never inserted twice; its pending twin, if any, is dropped.
//
// Confirm returns the temporary id of the entry it replaced, if any.
func (t *Timeline) Confirm(temporaryID string, msg chatsync.Message) (replaced string, changed bool) {
	changed = t.mutate(func() bool {
		if !t.owns(msg.ConversationID) {
			return false
		}
		i, found := -1, false
		if temporaryID != "" {
			i, found = t.byTemp[temporaryID]
		}
		if _, dup := t.byID[msg.ID]; dup {
			if !found {
				return false
			}
			t.removeLocked(i)
			replaced = temporaryID
			return true
		}
		if !found {
			i, found = t.findTwinLocked(msg)
		}
		confirmed := chatsync.Confirmed{Message: msg}
		if !found {
			t.insertOrderedLocked(confirmed)
			return true
		}
		replaced = t.entries[i].Key()
		t.replaceLocked(i, confirmed)
		return true
	})
	if changed {
		t.logger.Debug("message confirmed", "id", msg.ID, "temporary_id", replaced)
	}
	return replaced, changed
}

// ApplyRemoteInsert inserts a message from another client in timestamp
// order. A message whose id is already present is ignored.
func (t *Timeline) ApplyRemoteInsert(msg chatsync.Message) bool {
	return t.mutate(func() bool {
		if !t.owns(msg.ConversationID) {
			return false
		}
		if _, ok := t.byID[msg.ID]; ok {
			return false
		}
		t.insertOrderedLocked(chatsync.Confirmed{Message: msg})
		return true
	})
}

// ApplyEdit updates the content of a confirmed message in place.
func (t *Timeline) ApplyEdit(id, content string, editedAt time.Time) bool {
	return t.mutate(func() bool {
		i, ok := t.byID[id]
		if !ok {
			return false
		}
		c := t.entries[i].(chatsync.Confirmed)
		c.Message.Content = content
		c.Message.EditedAt = &editedAt
		t.entries[i] = c
		return true
	})
}

// ApplyDelete removes a confirmed message.
func (t *Timeline) ApplyDelete(id string) bool {
	return t.mutate(func() bool {
		i, ok := t.byID[id]
		if !ok {
			return false
		}
		t.removeLocked(i)
		return true
	})
}

// PrependHistoryPage merges an older page into the sequence, skipping ids
// already present. Page entries precede existing entries with an equal
// timestamp. It returns the number of messages added.
func (t *Timeline) PrependHistoryPage(page []chatsync.Message) int {
	var added int
	t.mutate(func() bool {
		fresh := t.freshLocked(page, true)
		t.mergeLocked(fresh)
		added = len(fresh)
		return added > 0
	})
	return added
}

// Replace installs the first history page. Pending entries and live
// confirmed entries newer than the page survive so that a load racing with
// sends or remote inserts loses nothing. It returns the number of page
// messages installed.
func (t *Timeline) Replace(page []chatsync.Message) int {
	var added int
	t.mutate(func() bool {
		fresh := t.freshLocked(page, false)
		inPage := make(map[string]struct{}, len(fresh))
		for _, m := range fresh {
			inPage[m.ID] = struct{}{}
		}
		var newest time.Time
		if n := len(fresh); n > 0 {
			newest = fresh[n-1].CreatedAt
		}

		before := len(t.entries)
		kept := t.entries[:0:0]
		for _, e := range t.entries {
			switch e := e.(type) {
			case chatsync.Pending:
				kept = append(kept, e)
			case chatsync.Confirmed:
				if _, dup := inPage[e.Message.ID]; !dup && e.Created().After(newest) {
					kept = append(kept, e)
				}
			}
		}
		t.entries = kept
		t.rebuildLocked()
		t.mergeLocked(fresh)
		added = len(fresh)
		return added > 0 || len(kept) != before
	})
	return added
}

// Clear empties the sequence and both indexes.
func (t *Timeline) Clear() bool {
	return t.mutate(func() bool {
		if len(t.entries) == 0 {
			return false
		}
		t.entries = nil
		t.rebuildLocked()
		return true
	})
}

// MarkSent sets the lifecycle of a pending entry to sent.
func (t *Timeline) MarkSent(temporaryID string) bool {
	return t.setState(temporaryID, chatsync.LifecycleSent)
}

// MarkFailed sets the lifecycle of a pending entry to failed.
func (t *Timeline) MarkFailed(temporaryID string) bool {
	return t.setState(temporaryID, chatsync.LifecycleFailed)
}

// MarkPending sets the lifecycle of a pending entry back to pending.
func (t *Timeline) MarkPending(temporaryID string) bool {
	return t.setState(temporaryID, chatsync.LifecyclePending)
}

func (t *Timeline) setState(temporaryID string, state chatsync.Lifecycle) bool {
	return t.mutate(func() bool {
		i, ok := t.byTemp[temporaryID]
		if !ok {
			return false
		}
		p := t.entries[i].(chatsync.Pending)
		if p.State == state {
			return false
		}
		p.State = state
		t.entries[i] = p
		return true
	})
}

// Discard removes a pending entry.
func (t *Timeline) Discard(temporaryID string) bool {
	return t.mutate(func() bool {
		i, ok := t.byTemp[temporaryID]
		if !ok {
			return false
		}
		t.removeLocked(i)
		return true
	})
}

// Lookup returns the entry with the given id or temporary id.
func (t *Timeline) Lookup(key string) (chatsync.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.byID[key]; ok {
		return t.entries[i], true
	}
	if i, ok := t.byTemp[key]; ok {
		return t.entries[i], true
	}
	return nil, false
}

// Snapshot returns the current sequence.
func (t *Timeline) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Subscribe registers fn to receive a snapshot after every change.
func (t *Timeline) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	t.mu.Lock()
	t.nextSub++
	id := t.nextSub
	t.subs = append(slices.Clip(t.subs), subscriber{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.subs = slices.DeleteFunc(slices.Clone(t.subs), func(s subscriber) bool { return s.id == id })
		})
	}
}

func (t *Timeline) mutate(fn func() bool) bool {
	t.mu.Lock()
	if !fn() {
		t.mu.Unlock()
		return false
	}
	t.version++
	snap := t.snapshotLocked()
	subs := t.subs
	t.mu.Unlock()

	for _, s := range subs {
		t.deliver(s.fn, snap)
	}
	return true
}

func (t *Timeline) deliver(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("timeline subscriber panicked", "panic", r, "version", snap.Version)
		}
	}()
	fn(snap)
}

func (t *Timeline) snapshotLocked() Snapshot {
	return Snapshot{
		ConversationID: t.conversationID,
		Version:        t.version,
		Entries:        slices.Clone(t.entries),
	}
}

func (t *Timeline) owns(conversationID string) bool {
	return conversationID == "" || conversationID == t.conversationID
}

// freshLocked returns the messages of page that belong to this conversation,
// without duplicates and in stable CreatedAt order. With skipExisting, ids
// already in the sequence are dropped too.
func (t *Timeline) freshLocked(page []chatsync.Message, skipExisting bool) []chatsync.Message {
	seen := make(map[string]struct{}, len(page))
	fresh := make([]chatsync.Message, 0, len(page))
	for _, m := range page {
		if !t.owns(m.ConversationID) {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if _, ok := t.byID[m.ID]; ok && skipExisting {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	slices.SortStableFunc(fresh, func(a, b chatsync.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return fresh
}

// mergeLocked merges sorted messages into the sequence. A message goes before
// any existing entry with the same timestamp.
func (t *Timeline) mergeLocked(fresh []chatsync.Message) {
	if len(fresh) == 0 {
		return
	}
	merged := make([]chatsync.Entry, 0, len(t.entries)+len(fresh))
	i := 0
	for _, e := range t.entries {
		for i < len(fresh) && !fresh[i].CreatedAt.After(e.Created()) {
			merged = append(merged, chatsync.Confirmed{Message: fresh[i]})
			i++
		}
		merged = append(merged, e)
	}
	for ; i < len(fresh); i++ {
		merged = append(merged, chatsync.Confirmed{Message: fresh[i]})
	}
	t.entries = merged
	t.rebuildLocked()
}

// insertOrderedLocked inserts e after every entry not newer than it.
func (t *Timeline) insertOrderedLocked(e chatsync.Entry) {
	created := e.Created()
	i := sort.Search(len(t.entries), func(j int) bool {
		return t.entries[j].Created().After(created)
	})
	t.entries = slices.Insert(t.entries, i, e)
	t.reindexLocked(i)
}

// replaceLocked swaps the pending entry at i for c.
func (t *Timeline) replaceLocked(i int, c chatsync.Confirmed) {
	delete(t.byTemp, t.entries[i].Key())
	created := c.Created()
	fits := (i == 0 || !t.entries[i-1].Created().After(created)) &&
		(i == len(t.entries)-1 || !created.After(t.entries[i+1].Created()))
	if fits {
		t.entries[i] = c
		t.indexLocked(i)
		return
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	t.reindexLocked(i)
	t.insertOrderedLocked(c)
}

func (t *Timeline) removeLocked(i int) {
	switch e := t.entries[i].(type) {
	case chatsync.Pending:
		delete(t.byTemp, e.TemporaryID)
	case chatsync.Confirmed:
		delete(t.byID, e.Message.ID)
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	t.reindexLocked(i)
}

// findTwinLocked looks for the earliest pending entry that matches msg by
// author and content within DuplicateWindow.
func (t *Timeline) findTwinLocked(msg chatsync.Message) (int, bool) {
	earliest := msg.CreatedAt.Add(-DuplicateWindow)
	latest := msg.CreatedAt.Add(DuplicateWindow)
	match := -1
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.Created().Before(earliest) {
			break
		}
		p, ok := e.(chatsync.Pending)
		if !ok || p.CreatedAt.After(latest) {
			continue
		}
		if p.Author.ID == msg.Author.ID && p.Content == msg.Content {
			match = i
		}
	}
	return match, match >= 0
}

func (t *Timeline) rebuildLocked() {
	clear(t.byID)
	clear(t.byTemp)
	t.reindexLocked(0)
}

func (t *Timeline) reindexLocked(from int) {
	for j := from; j < len(t.entries); j++ {
		t.indexLocked(j)
	}
}

func (t *Timeline) indexLocked(j int) {
	switch e := t.entries[j].(type) {
	case chatsync.Pending:
		t.byTemp[e.TemporaryID] = j
	case chatsync.Confirmed:
		t.byID[e.Message.ID] = j
	}
}
