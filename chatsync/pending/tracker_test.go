package pending

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/eoncord/chatsync-go/chatsync"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i]
		i++
		return id
	}
}

func TestTrackerCreate(t *testing.T) {
	tr := NewTracker(
		WithClock(func() time.Time { return epoch }),
		WithIDGenerator(sequentialIDs("tmp-1")),
		WithLogger(slogt.New(t)),
	)

	p, err := tr.Create("general", " hi ", nil, chatsync.Author{ID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := chatsync.Pending{
		TemporaryID:    "tmp-1",
		ConversationID: "general",
		Author:         chatsync.Author{ID: "u1"},
		Content:        "hi",
		CreatedAt:      epoch,
		State:          chatsync.LifecyclePending,
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTrackerCreateRejectsInvalidDraft(t *testing.T) {
	tr := NewTracker(WithMaxContentLength(3))

	if _, err := tr.Create("c", "  ", nil, chatsync.Author{ID: "u1"}); !errors.Is(err, chatsync.ErrEmptyMessage) {
		t.Errorf("empty: got %v", err)
	}
	if _, err := tr.Create("c", "four", nil, chatsync.Author{ID: "u1"}); !errors.Is(err, chatsync.ErrContentTooLong) {
		t.Errorf("too long: got %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("rejected drafts were tracked")
	}
}

func TestTrackerRandomIDsAreUnique(t *testing.T) {
	tr := NewTracker()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		p, err := tr.Create("c", "x", nil, chatsync.Author{ID: "u1"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[p.TemporaryID] {
			t.Fatalf("duplicate id %s", p.TemporaryID)
		}
		seen[p.TemporaryID] = true
	}
}

func TestTrackerCollisionPanics(t *testing.T) {
	tr := NewTracker(WithIDGenerator(func() string { return "same" }))
	if _, err := tr.Create("c", "a", nil, chatsync.Author{ID: "u1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	tr.Discard("same")

	defer func() {
		if recover() == nil {
			t.Errorf("reused id did not panic")
		}
	}()
	_, _ = tr.Create("c", "b", nil, chatsync.Author{ID: "u1"})
}

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker(WithIDGenerator(sequentialIDs("a", "b")))
	a, _ := tr.Create("c", "one", nil, chatsync.Author{ID: "u1"})
	b, _ := tr.Create("c", "two", nil, chatsync.Author{ID: "u1"})

	if !tr.MarkSent(a.TemporaryID) {
		t.Fatal("MarkSent on known id returned false")
	}
	if got, _ := tr.Get(a.TemporaryID); got.State != chatsync.LifecycleSent {
		t.Errorf("state = %s, want sent", got.State)
	}

	if _, ok := tr.MarkRetrying(b.TemporaryID); ok {
		t.Error("MarkRetrying accepted an entry that never failed")
	}
	tr.MarkFailed(b.TemporaryID)
	if got, _ := tr.Get(b.TemporaryID); got.State != chatsync.LifecycleFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
	retry, ok := tr.MarkRetrying(b.TemporaryID)
	if !ok || retry.State != chatsync.LifecyclePending {
		t.Errorf("MarkRetrying = %+v, %v", retry, ok)
	}

	if !tr.Resolve(a.TemporaryID, chatsync.Message{ID: "m1"}) {
		t.Error("Resolve on known id returned false")
	}
	if tr.Resolve(a.TemporaryID, chatsync.Message{ID: "m1"}) {
		t.Error("second Resolve returned true")
	}
	if tr.Resolve("unknown", chatsync.Message{ID: "m2"}) {
		t.Error("Resolve on unknown id returned true")
	}
	if tr.MarkFailed("unknown") {
		t.Error("MarkFailed on unknown id returned true")
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestTrackerDropConversation(t *testing.T) {
	tr := NewTracker()
	_, _ = tr.Create("a", "1", nil, chatsync.Author{ID: "u1"})
	_, _ = tr.Create("a", "2", nil, chatsync.Author{ID: "u1"})
	_, _ = tr.Create("b", "3", nil, chatsync.Author{ID: "u1"})

	if n := tr.DropConversation("a"); n != 2 {
		t.Errorf("dropped %d, want 2", n)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}
