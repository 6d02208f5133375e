package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/rest"
	"github.com/eoncord/chatsync-go/chatsync/timeline"
)

type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	sendErr    error
	sent       []chatsync.Outgoing
	dispatcher chatsync.Dispatcher
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(_ context.Context, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return chatsync.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, chatsync.Outgoing{Type: eventType, Payload: payload})
	return nil
}

func (f *fakeTransport) Subscribe(eventType string, h chatsync.Handler) func() {
	return f.dispatcher.Subscribe(eventType, h)
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) outgoing() []chatsync.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatsync.Outgoing(nil), f.sent...)
}

func (f *fakeTransport) emit(t *testing.T, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", eventType, err)
	}
	f.dispatcher.Dispatch(chatsync.Event{Type: eventType, Payload: raw})
}

type fakeAPI struct {
	mu        sync.Mutex
	pages     map[string]*rest.Page
	createErr error
	created   []rest.CreateMessageRequest
	nextID    int
	now       time.Time
}

func (f *fakeAPI) ListMessages(_ context.Context, conversationID string, _ int, _ string) (*rest.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pages[conversationID]; ok {
		return p, nil
	}
	return &rest.Page{}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, req rest.CreateMessageRequest) (*chatsync.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	f.nextID++
	return &chatsync.Message{
		ID:             fmt.Sprintf("srv-%d", f.nextID),
		ConversationID: req.ConversationID,
		Author:         chatsync.Author{ID: req.AuthorID},
		Content:        req.Content,
		Attachments:    req.Attachments,
		CreatedAt:      f.now,
	}, nil
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	session   *Session
	transport *fakeTransport
	api       *fakeAPI
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	tr := &fakeTransport{}
	api := &fakeAPI{pages: make(map[string]*rest.Page), now: t0.Add(time.Second)}
	n := 0
	opts := Options{
		Transport:  tr,
		API:        api,
		Self:       chatsync.Author{ID: "me", DisplayName: "Me"},
		Now:        func() time.Time { return t0 },
		NewID:      func() string { n++; return fmt.Sprintf("tmp-%d", n) },
		Location:   time.UTC,
		Logger:     slogt.New(t),
		Registerer: prometheus.NewRegistry(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return &fixture{session: s, transport: tr, api: api}
}

func (f *fixture) start(t *testing.T, conversationID string) {
	t.Helper()
	if err := f.session.Start(context.Background()); err != nil && f.transport.connectErr == nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.session.Open(context.Background(), conversationID); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func entryState(t *testing.T, s *Session, key string) (confirmed bool, state chatsync.Lifecycle) {
	t.Helper()
	for _, e := range s.Snapshot().Entries {
		if e.Key() != key {
			continue
		}
		switch e := e.(type) {
		case chatsync.Confirmed:
			return true, 0
		case chatsync.Pending:
			return false, e.State
		}
	}
	t.Fatalf("no entry %s in %v", key, keys(s))
	return false, 0
}

func keys(s *Session) []string {
	var out []string
	for _, e := range s.Snapshot().Entries {
		out = append(out, e.Key())
	}
	return out
}

func msg(id, conversationID, author string, at time.Time) chatsync.Message {
	return chatsync.Message{ID: id, ConversationID: conversationID, Author: chatsync.Author{ID: author}, Content: "body " + id, CreatedAt: at}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New without transport succeeded")
	}
	if _, err := New(Options{Transport: &fakeTransport{}, API: &fakeAPI{}}); err == nil {
		t.Error("New without local user succeeded")
	}
}

func TestOpenLoadsHistory(t *testing.T) {
	f := newFixture(t)
	f.api.pages["general"] = &rest.Page{Items: []chatsync.Message{
		msg("m1", "general", "u2", t0.Add(-2*time.Minute)),
		msg("m2", "general", "u2", t0.Add(-time.Minute)),
	}}
	f.start(t, "general")

	if diff := cmp.Diff([]string{"m1", "m2"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if st := f.session.LoadState(); !st.Loaded || st.HasMore {
		t.Errorf("unexpected load state %+v", st)
	}
	if got := testutil.ToFloat64(f.session.metrics.historyPages); got != 1 {
		t.Errorf("history pages = %v, want 1", got)
	}
}

func TestSendOverPushThenEcho(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")

	p, err := f.session.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if confirmed, state := entryState(t, f.session, p.TemporaryID); confirmed || state != chatsync.LifecycleSent {
		t.Errorf("after send: confirmed=%v state=%s", confirmed, state)
	}

	out := f.transport.outgoing()
	if len(out) != 1 || out[0].Type != chatsync.EventMessageCreate {
		t.Fatalf("unexpected outgoing %+v", out)
	}
	want := chatsync.MessageCreate{ConversationID: "general", AuthorID: "me", Content: "hi", TemporaryID: "tmp-1"}
	if diff := cmp.Diff(want, out[0].Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	echo := chatsync.MessageCreated{Message: msg("m42", "general", "me", t0.Add(time.Second)), TemporaryID: p.TemporaryID}
	echo.Content = "hi"
	f.transport.emit(t, chatsync.EventMessageCreated, echo)
	f.transport.emit(t, chatsync.EventMessageCreated, chatsync.MessageCreated{Message: echo.Message})

	if diff := cmp.Diff([]string{"m42"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if f.session.pending.Len() != 0 {
		t.Errorf("tracker still holds %d entries", f.session.pending.Len())
	}
	if got := testutil.ToFloat64(f.session.metrics.sent.WithLabelValues(pathPush)); got != 1 {
		t.Errorf("push sends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.session.metrics.confirmations); got != 1 {
		t.Errorf("confirmations = %v, want 1", got)
	}
}

func TestSendFallsBackToRESTInPlace(t *testing.T) {
	f := newFixture(t)
	f.transport.connectErr = errors.New("refused")
	f.start(t, "general")

	var lens []int
	f.session.Subscribe(func(s timeline.Snapshot) { lens = append(lens, s.Len()) })

	p, err := f.session.Send(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff([]string{"srv-1"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	// insert, then confirm in place: never an empty sequence in between
	if diff := cmp.Diff([]int{1, 1}, lens); diff != "" {
		t.Errorf("snapshot lengths (-want +got):\n%s", diff)
	}
	if _, ok := f.session.pending.Get(p.TemporaryID); ok {
		t.Error("tracker still holds the fallback entry")
	}
	if got := testutil.ToFloat64(f.session.metrics.sent.WithLabelValues(pathREST)); got != 1 {
		t.Errorf("rest sends = %v, want 1", got)
	}

	// the server later broadcasts the same message once reconnected
	f.transport.emit(t, chatsync.EventMessageCreated, chatsync.MessageCreated{Message: chatsync.Message{
		ID: "srv-1", ConversationID: "general", Author: chatsync.Author{ID: "me"}, Content: "hello", CreatedAt: t0.Add(time.Second),
	}})
	if diff := cmp.Diff([]string{"srv-1"}, keys(f.session)); diff != "" {
		t.Errorf("keys after broadcast mismatch (-want +got):\n%s", diff)
	}
}

func TestSendFailureRetryDiscard(t *testing.T) {
	f := newFixture(t)
	f.transport.connectErr = errors.New("refused")
	f.start(t, "general")
	f.api.createErr = &rest.APIError{Status: 503, Message: "unavailable"}

	p, err := f.session.Send(context.Background(), "hi", nil)
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send error = %v, want APIError", err)
	}
	if _, state := entryState(t, f.session, p.TemporaryID); state != chatsync.LifecycleFailed {
		t.Errorf("state = %s, want failed", state)
	}
	if got := testutil.ToFloat64(f.session.metrics.failed); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}

	f.api.createErr = nil
	if err := f.session.Retry(context.Background(), p.TemporaryID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if confirmed, _ := entryState(t, f.session, "srv-1"); !confirmed {
		t.Error("retried message not confirmed")
	}
	if err := f.session.Retry(context.Background(), p.TemporaryID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("second Retry = %v, want ErrNotFailed", err)
	}

	f.api.createErr = errors.New("boom")
	q, _ := f.session.Send(context.Background(), "again", nil)
	if !f.session.Discard(q.TemporaryID) {
		t.Fatal("Discard returned false")
	}
	if diff := cmp.Diff([]string{"srv-1"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSendWriteErrorMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")
	f.transport.sendErr = chatsync.WrapError(chatsync.ErrorConnection, "write", errors.New("broken pipe"))

	p, err := f.session.Send(context.Background(), "hi", nil)
	if !chatsync.IsConnectionError(err) {
		t.Fatalf("Send error = %v", err)
	}
	if _, state := entryState(t, f.session, p.TemporaryID); state != chatsync.LifecycleFailed {
		t.Errorf("state = %s, want failed", state)
	}
	if len(f.api.created) != 0 {
		t.Error("write error fell back to the request/response API")
	}
}

func TestSendValidationAndNoConversation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.Send(context.Background(), "hi", nil); !errors.Is(err, ErrNoConversation) {
		t.Errorf("Send without conversation = %v", err)
	}
	f.start(t, "general")
	if _, err := f.session.Send(context.Background(), "   ", nil); !errors.Is(err, chatsync.ErrEmptyMessage) {
		t.Errorf("empty Send = %v", err)
	}
	if n := f.session.Snapshot().Len(); n != 0 {
		t.Errorf("invalid draft inserted %d entries", n)
	}
	if len(f.transport.outgoing()) != 0 {
		t.Error("invalid draft reached the network")
	}
}

func TestRemoteEvents(t *testing.T) {
	f := newFixture(t)
	f.api.pages["general"] = &rest.Page{Items: []chatsync.Message{msg("m1", "general", "u2", t0.Add(-time.Minute))}}
	f.start(t, "general")

	f.transport.emit(t, chatsync.EventTypingStart, chatsync.TypingEvent{ConversationID: "general", User: chatsync.TypingUser{ID: "u3", DisplayName: "Cy"}})
	if got := f.session.Typing(); len(got) != 1 || got[0].DisplayName != "Cy" {
		t.Errorf("typing = %+v", got)
	}

	f.transport.emit(t, chatsync.EventMessageCreated, chatsync.MessageCreated{Message: msg("m2", "general", "u3", t0)})
	if len(f.session.Typing()) != 0 {
		t.Error("author still typing after their message arrived")
	}
	f.transport.emit(t, chatsync.EventMessageCreated, chatsync.MessageCreated{Message: msg("x1", "random", "u3", t0)})
	if diff := cmp.Diff([]string{"m1", "m2"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	edited := msg("m1", "general", "u2", t0.Add(-time.Minute))
	edited.Content = "fixed typo"
	f.transport.emit(t, chatsync.EventMessageUpdated, edited)
	rows := f.session.Rows(t0)
	if m := rows[0].Entry.(chatsync.Confirmed).Message; m.Content != "fixed typo" || !rows[0].Edited {
		t.Errorf("edit not applied: %+v", m)
	}

	f.transport.emit(t, chatsync.EventReactionAdd, chatsync.ReactionEvent{MessageID: "m2", Emoji: "👍", UserID: "u2"})
	if got := f.session.Reactions("m2"); len(got) != 1 || got[0].Count != 1 {
		t.Errorf("reactions = %+v", got)
	}

	f.transport.emit(t, chatsync.EventMessageDeleted, chatsync.MessageDelete{MessageID: "m2"})
	if diff := cmp.Diff([]string{"m1"}, keys(f.session)); diff != "" {
		t.Errorf("keys after delete mismatch (-want +got):\n%s", diff)
	}
	if f.session.Reactions("m2") != nil {
		t.Error("reactions of a deleted message survived")
	}

	f.transport.emit(t, chatsync.EventPresenceUpdate, chatsync.PresenceEvent{UserID: "u2", Status: chatsync.StatusIdle})
	if p, ok := f.session.Presence("u2"); !ok || p.Status != chatsync.StatusIdle {
		t.Errorf("presence = %+v, %v", p, ok)
	}

	f.transport.dispatcher.Dispatch(chatsync.Event{Type: chatsync.EventReactionAdd, Payload: json.RawMessage(`"not an object"`)})
	if got := testutil.ToFloat64(f.session.metrics.remoteEvents.WithLabelValues(chatsync.EventReactionAdd)); got != 2 {
		t.Errorf("reaction:add events = %v, want 2", got)
	}
}

func TestOpenSwitchesConversation(t *testing.T) {
	f := newFixture(t)
	f.api.pages["a"] = &rest.Page{Items: []chatsync.Message{msg("a1", "a", "u2", t0)}}
	f.api.pages["b"] = &rest.Page{Items: []chatsync.Message{msg("b1", "b", "u2", t0)}}
	f.start(t, "a")

	var seen []string
	f.session.Subscribe(func(s timeline.Snapshot) { seen = append(seen, s.ConversationID) })

	if _, err := f.session.Open(context.Background(), "b"); err != nil {
		t.Fatalf("Open b: %v", err)
	}
	f.transport.emit(t, chatsync.EventMessageCreated, chatsync.MessageCreated{Message: msg("a2", "a", "u2", t0.Add(time.Second))})

	if diff := cmp.Diff([]string{"b1"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	for _, c := range seen {
		if c != "b" {
			t.Errorf("subscriber saw a snapshot of %s", c)
		}
	}
}

func TestToggleReaction(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")
	ctx := context.Background()

	on, err := f.session.ToggleReaction(ctx, "m1", "🎉")
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v", on, err)
	}
	f.transport.emit(t, chatsync.EventReactionAdd, chatsync.ReactionEvent{MessageID: "m1", Emoji: "🎉", UserID: "me"})
	if got := f.session.Reactions("m1"); len(got) != 1 || got[0].Count != 1 || !got[0].ReactedByMe {
		t.Errorf("reactions after echo = %+v", got)
	}

	on, err = f.session.ToggleReaction(ctx, "m1", "🎉")
	if err != nil || on {
		t.Fatalf("second toggle = %v, %v", on, err)
	}
	if f.session.Reactions("m1") != nil {
		t.Error("reaction survived toggling off")
	}

	types := []string{}
	for _, o := range f.transport.outgoing() {
		types = append(types, o.Type)
	}
	if diff := cmp.Diff([]string{chatsync.EventReactionAdd, chatsync.EventReactionRemove}, types); diff != "" {
		t.Errorf("outgoing mismatch (-want +got):\n%s", diff)
	}
}

func TestPushOnlyOperationsFailFastWhenDisconnected(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")
	f.transport.setConnected(false)
	ctx := context.Background()

	if err := f.session.Edit(ctx, "m1", "new"); !errors.Is(err, chatsync.ErrNotConnected) {
		t.Errorf("Edit = %v", err)
	}
	if err := f.session.Delete(ctx, "m1"); !errors.Is(err, chatsync.ErrNotConnected) {
		t.Errorf("Delete = %v", err)
	}
	if _, err := f.session.ToggleReaction(ctx, "m1", "👍"); !errors.Is(err, chatsync.ErrNotConnected) {
		t.Errorf("ToggleReaction = %v", err)
	}
	if err := f.session.SetStatus(ctx, chatsync.StatusDND, ""); !errors.Is(err, chatsync.ErrNotConnected) {
		t.Errorf("SetStatus = %v", err)
	}
	if f.session.NotifyTyping(ctx) {
		t.Error("typing emitted while disconnected")
	}
	if err := f.session.Edit(ctx, "m1", ""); !errors.Is(err, chatsync.ErrEmptyMessage) {
		t.Errorf("empty Edit = %v", err)
	}
}

func TestSetStatusAndTyping(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")
	ctx := context.Background()

	if err := f.session.SetStatus(ctx, chatsync.StatusDND, "focus"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if p, _ := f.session.Presence("me"); p.Status != chatsync.StatusDND || p.CustomStatus != "focus" {
		t.Errorf("local presence = %+v", p)
	}
	if !f.session.NotifyTyping(ctx) || f.session.NotifyTyping(ctx) {
		t.Error("typing emission not throttled")
	}

	out := f.transport.outgoing()
	if len(out) != 2 || out[0].Type != chatsync.EventPresenceSet || out[1].Type != chatsync.EventTypingStart {
		t.Errorf("unexpected outgoing %+v", out)
	}
}

func TestCloseRemovesHandlers(t *testing.T) {
	f := newFixture(t)
	f.start(t, "general")
	f.session.Close()

	if n := f.transport.dispatcher.Handlers(chatsync.EventMessageCreated); n != 0 {
		t.Errorf("%d handlers left after Close", n)
	}
}

func TestSubscriberMayLoadOlderAndOpen(t *testing.T) {
	f := newFixture(t)
	f.api.pages["a"] = &rest.Page{Items: []chatsync.Message{msg("a1", "a", "u2", t0)}, NextCursor: "a0"}
	f.api.pages["b"] = &rest.Page{Items: []chatsync.Message{msg("b1", "b", "u2", t0)}}
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var olderErr, openErr error
	calledBack := false
	f.session.Subscribe(func(snap timeline.Snapshot) {
		if calledBack || snap.ConversationID != "a" || snap.Len() == 0 {
			return
		}
		calledBack = true
		_, olderErr = f.session.LoadOlder(context.Background())
		_, openErr = f.session.Open(context.Background(), "b")
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Open(context.Background(), "a")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Open a: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return while a subscriber loaded history")
	}

	if !calledBack || olderErr != nil || openErr != nil {
		t.Fatalf("subscriber: called %v, LoadOlder %v, Open %v", calledBack, olderErr, openErr)
	}
	if diff := cmp.Diff([]string{"b1"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if st := f.session.LoadState(); st.ConversationID != "b" || !st.Loaded {
		t.Errorf("unexpected load state %+v", st)
	}
}

func TestOpenForgetsPreviousConversation(t *testing.T) {
	f := newFixture(t)
	f.api.pages["a"] = &rest.Page{Items: []chatsync.Message{msg("a1", "a", "u2", t0)}}
	f.api.pages["b"] = &rest.Page{Items: []chatsync.Message{msg("b1", "b", "u2", t0)}}
	f.start(t, "a")

	p, err := f.session.Send(context.Background(), "in flight", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	f.transport.emit(t, chatsync.EventTypingStart, chatsync.TypingEvent{ConversationID: "a", User: chatsync.TypingUser{ID: "u2"}})
	f.transport.emit(t, chatsync.EventReactionAdd, chatsync.ReactionEvent{MessageID: "a1", Emoji: "👍", UserID: "u2"})

	if _, err := f.session.Open(context.Background(), "b"); err != nil {
		t.Fatalf("Open b: %v", err)
	}
	if n := f.session.pending.Len(); n != 0 {
		t.Errorf("tracker holds %d entries of the previous conversation", n)
	}
	if got := f.session.typing.Active("a"); len(got) != 0 {
		t.Errorf("typing in previous conversation = %+v", got)
	}
	if got := f.session.Reactions("a1"); got != nil {
		t.Errorf("reactions of previous conversation = %+v", got)
	}

	// late confirmation and edits of the previous conversation
	echo := chatsync.MessageCreated{Message: msg("a2", "a", "me", t0), TemporaryID: p.TemporaryID}
	f.transport.emit(t, chatsync.EventMessageCreated, echo)
	f.transport.emit(t, chatsync.EventMessageUpdated, msg("a1", "a", "u2", t0))
	if diff := cmp.Diff([]string{"b1"}, keys(f.session)); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if err := f.session.Retry(context.Background(), p.TemporaryID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Retry of a dropped entry = %v, want ErrNotFailed", err)
	}
}

func TestStartSweepsExpiredTyping(t *testing.T) {
	var mu sync.Mutex
	now := t0
	f := newFixture(t, func(o *Options) {
		o.TypingTTL = 10 * time.Millisecond
		o.Now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
	})
	f.start(t, "general")

	// a conversation nobody reads, so nothing purges it lazily
	f.transport.emit(t, chatsync.EventTypingStart, chatsync.TypingEvent{ConversationID: "elsewhere", User: chatsync.TypingUser{ID: "u2"}})
	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	time.Sleep(200 * time.Millisecond)
	if f.session.typing.Stop("elsewhere", "u2") {
		t.Error("expired typing entry was not swept")
	}
}
