// Package session wires the transport, the request/response API and the
// per-conversation state into one chat session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/history"
	"github.com/eoncord/chatsync-go/chatsync/pending"
	"github.com/eoncord/chatsync-go/chatsync/presence"
	"github.com/eoncord/chatsync-go/chatsync/reactions"
	"github.com/eoncord/chatsync-go/chatsync/render"
	"github.com/eoncord/chatsync-go/chatsync/rest"
	"github.com/eoncord/chatsync-go/chatsync/timeline"
	"github.com/eoncord/chatsync-go/chatsync/typing"
)

var (
	// ErrNoConversation is returned when an operation needs an open
	// conversation and none is open.
	ErrNoConversation = errors.New("session: no conversation open")

	// ErrNotFailed is returned by Retry for an entry that is unknown or has
	// not failed.
	ErrNotFailed = errors.New("session: message is not in the failed state")
)

// Transport is the push channel. *chatsync.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, eventType string, payload any) error
	Subscribe(eventType string, h chatsync.Handler) (unsubscribe func())
}

// API is the request/response service. *rest.Client satisfies it.
type API interface {
	history.Fetcher
	CreateMessage(ctx context.Context, req rest.CreateMessageRequest) (*chatsync.Message, error)
}

// Options configures a Session.
type Options struct {
	Transport Transport
	API       API
	Self      chatsync.Author

	PageSize         int
	MaxContentLength int
	TypingTTL        time.Duration
	TypingThrottle   time.Duration

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string

	Location   *time.Location
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Session is the client-side state of one signed-in user.
type Session struct {
	transport Transport
	api       API
	self      chatsync.Author
	maxLen    int
	now       func() time.Time
	loc       *time.Location
	logger    *slog.Logger
	metrics   *metrics

	pending   *pending.Tracker
	loader    *history.Loader
	typing    *typing.Tracker
	reactions *reactions.Store
	presence  *presence.Store

	sweepEvery time.Duration

	mu        sync.Mutex
	active    string
	current   *timeline.Timeline
	unfollow  func()
	unsubs    []func()
	stopSweep context.CancelFunc
	nextSub   uint64
	subs      []subscriber
}

type subscriber struct {
	id uint64
	fn func(timeline.Snapshot)
}

// New creates a session. Transport and API are required.
func New(opts Options) (*Session, error) {
	if opts.Transport == nil || opts.API == nil {
		return nil, chatsync.NewError(chatsync.ErrorInvalidConfig, "session needs a transport and an API")
	}
	if opts.Self.ID == "" {
		return nil, chatsync.NewError(chatsync.ErrorInvalidConfig, "session needs the local user id")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = chatsync.DefaultMaxContentLength
	}
	logger := chatsync.LoggerOrDiscard(opts.Logger)

	trackerOpts := []pending.Option{
		pending.WithClock(opts.Now),
		pending.WithMaxContentLength(opts.MaxContentLength),
		pending.WithLogger(logger),
	}
	if opts.NewID != nil {
		trackerOpts = append(trackerOpts, pending.WithIDGenerator(opts.NewID))
	}
	sweepEvery := opts.TypingTTL
	if sweepEvery <= 0 {
		sweepEvery = typing.DefaultTTL
	}

	return &Session{
		transport: opts.Transport,
		api:       opts.API,
		self:      opts.Self,
		maxLen:    opts.MaxContentLength,
		now:       opts.Now,
		loc:       opts.Location,
		logger:    logger,
		metrics:   newMetrics(opts.Registerer),
		pending:   pending.NewTracker(trackerOpts...),
		loader:    history.NewLoader(opts.API, opts.PageSize, logger),
		typing: typing.NewTracker(typing.Options{
			Self:     chatsync.TypingUser{ID: opts.Self.ID, DisplayName: opts.Self.DisplayName},
			TTL:      opts.TypingTTL,
			Throttle: opts.TypingThrottle,
			Sender:   opts.Transport,
			Now:      opts.Now,
			Logger:   logger,
		}),
		reactions:  reactions.NewStore(opts.Self.ID),
		presence:   presence.NewStore(opts.Now),
		sweepEvery: sweepEvery,
	}, nil
}

// Start subscribes the push handlers, starts expiring typing indicators and
// connects the transport. A connect failure is returned but the session
// stays usable through the request/response API.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubs == nil {
		for eventType, h := range s.handlers() {
			s.unsubs = append(s.unsubs, s.transport.Subscribe(eventType, h))
		}
		sweepCtx, cancel := context.WithCancel(context.Background())
		s.stopSweep = cancel
		go s.typing.Run(sweepCtx, s.sweepEvery)
	}
	s.mu.Unlock()

	if err := s.transport.Connect(ctx); err != nil {
		s.logger.Warn("push channel unavailable, using request/response fallback", "error", err)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Close removes the push handlers, stops the typing sweeper and applying
// history loads, and forgets all reactions.
func (s *Session) Close() {
	s.mu.Lock()
	unsubs, stop := s.unsubs, s.stopSweep
	s.unsubs, s.stopSweep = nil, nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if stop != nil {
		stop()
	}
	s.loader.Deactivate()
	s.reactions.Reset()
}

// Self returns the local user.
func (s *Session) Self() chatsync.Author { return s.self }

// Open makes conversationID the active conversation with an empty
// sequence, drops its pending entries and loads the newest page of history.
// Switching away from another conversation forgets that conversation's
// pending entries, typing indicators and reactions.
func (s *Session) Open(ctx context.Context, conversationID string) (history.Result, error) {
	tl := timeline.New(conversationID, s.logger)
	follow := s.follow(tl)

	s.mu.Lock()
	previous, unfollow := s.active, s.unfollow
	s.active, s.current = conversationID, tl
	s.unfollow = tl.Subscribe(follow)
	s.mu.Unlock()
	if unfollow != nil {
		unfollow()
	}

	s.loader.Activate(conversationID, tl)
	if previous != "" && previous != conversationID {
		s.pending.DropConversation(previous)
		s.typing.Forget(previous)
		s.reactions.Reset()
	}
	s.pending.DropConversation(conversationID)
	s.logger.Info("conversation opened", "conversation", conversationID, "previous", previous)
	follow(tl.Snapshot())

	return s.load(s.loader.LoadLatest(ctx))
}

// LoadOlder loads the page before the oldest loaded message.
func (s *Session) LoadOlder(ctx context.Context) (history.Result, error) {
	return s.load(s.loader.LoadOlder(ctx))
}

// RetryLoad repeats the most recent failed history request.
func (s *Session) RetryLoad(ctx context.Context) (history.Result, error) {
	return s.load(s.loader.Retry(ctx))
}

// LoadState returns the pagination state of the active conversation.
func (s *Session) LoadState() history.State { return s.loader.State() }

func (s *Session) load(res history.Result, err error) (history.Result, error) {
	if err == nil && !res.Skipped {
		s.metrics.historyPages.Inc()
	}
	return res, err
}

// Send composes a message in the active conversation. The pending entry is
// visible in the timeline before any network call. It goes over the push
// channel when connected and through the request/response API otherwise.
//
// A validation error means nothing was inserted. Any other error means
// the entry stays in the timeline as failed, ready for Retry or Discard.
func (s *Session) Send(ctx context.Context, content string, attachments []chatsync.Attachment) (chatsync.Pending, error) {
	tl, conversationID, err := s.activeTimeline()
	if err != nil {
		return chatsync.Pending{}, err
	}
	p, err := s.pending.Create(conversationID, content, attachments, s.self)
	if err != nil {
		return chatsync.Pending{}, err
	}
	tl.InsertPending(p)
	return p, s.deliver(ctx, tl, p)
}

// Retry re-sends a failed message.
func (s *Session) Retry(ctx context.Context, temporaryID string) error {
	p, ok := s.pending.MarkRetrying(temporaryID)
	if !ok {
		return ErrNotFailed
	}
	tl, ok := s.visible(p.ConversationID)
	if !ok {
		s.pending.Discard(temporaryID)
		return ErrNotFailed
	}
	tl.MarkPending(temporaryID)
	return s.deliver(ctx, tl, p)
}

// Discard removes a pending or failed message without sending it.
func (s *Session) Discard(temporaryID string) bool {
	p, ok := s.pending.Get(temporaryID)
	if !ok {
		return false
	}
	s.pending.Discard(temporaryID)
	if tl, ok := s.visible(p.ConversationID); ok {
		tl.Discard(temporaryID)
	}
	return true
}

func (s *Session) deliver(ctx context.Context, tl *timeline.Timeline, p chatsync.Pending) error {
	if s.transport.Connected() {
		err := s.transport.Send(ctx, chatsync.EventMessageCreate, chatsync.MessageCreate{
			ConversationID: p.ConversationID,
			AuthorID:       p.Author.ID,
			Content:        p.Content,
			TemporaryID:    p.TemporaryID,
			Attachments:    p.Attachments,
		})
		switch {
		case err == nil:
			// The confirmation may already have resolved the entry.
			if s.pending.MarkSent(p.TemporaryID) {
				tl.MarkSent(p.TemporaryID)
			}
			s.metrics.sent.WithLabelValues(pathPush).Inc()
			return nil
		case !errors.Is(err, chatsync.ErrNotConnected):
			s.fail(tl, p, err)
			return err
		}
		s.logger.Debug("push channel dropped before send, falling back", "temporary_id", p.TemporaryID)
	}

	msg, err := s.api.CreateMessage(ctx, rest.CreateMessageRequest{
		ConversationID: p.ConversationID,
		Content:        p.Content,
		AuthorID:       p.Author.ID,
		Attachments:    p.Attachments,
	})
	if err != nil {
		err = fmt.Errorf("create message: %w", err)
		s.fail(tl, p, err)
		return err
	}
	s.metrics.sent.WithLabelValues(pathREST).Inc()
	s.confirm(tl, p.TemporaryID, *msg)
	return nil
}

func (s *Session) fail(tl *timeline.Timeline, p chatsync.Pending, err error) {
	s.pending.MarkFailed(p.TemporaryID)
	tl.MarkFailed(p.TemporaryID)
	s.metrics.failed.Inc()
	s.logger.Warn("message delivery failed", "temporary_id", p.TemporaryID, "conversation", p.ConversationID, "error", err)
}

func (s *Session) confirm(tl *timeline.Timeline, temporaryID string, msg chatsync.Message) {
	replaced, _ := tl.Confirm(temporaryID, msg)
	if replaced == "" {
		if temporaryID == "" || !s.pending.Resolve(temporaryID, msg) {
			return
		}
	} else {
		s.pending.Resolve(replaced, msg)
	}
	s.metrics.confirmations.Inc()
}

// Edit changes the content of one of the local user's messages. The new
// content shows once the server broadcasts the update.
func (s *Session) Edit(ctx context.Context, messageID, content string) error {
	body, err := chatsync.ValidateDraft(content, nil, s.maxLen)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, chatsync.EventMessageUpdate, chatsync.MessageUpdate{MessageID: messageID, Content: body})
}

// Delete removes one of the local user's messages once the server
// broadcasts the deletion.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	return s.transport.Send(ctx, chatsync.EventMessageDelete, chatsync.MessageDelete{MessageID: messageID})
}

// ToggleReaction removes the local user's emoji reaction if present and adds
// it otherwise. It reports whether the reaction is now set.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) (bool, error) {
	eventType := chatsync.EventReactionAdd
	if s.reactions.ReactedByMe(messageID, emoji) {
		eventType = chatsync.EventReactionRemove
	}
	ev := chatsync.ReactionEvent{MessageID: messageID, Emoji: emoji, UserID: s.self.ID}
	if err := s.transport.Send(ctx, eventType, ev); err != nil {
		return s.reactions.ReactedByMe(messageID, emoji), err
	}
	if eventType == chatsync.EventReactionAdd {
		s.reactions.Add(messageID, emoji, s.self.ID)
		return true, nil
	}
	s.reactions.Remove(messageID, emoji, s.self.ID)
	return false, nil
}

// NotifyTyping tells other members of the active conversation that the local
// user is typing. It is throttled and best effort.
func (s *Session) NotifyTyping(ctx context.Context) bool {
	_, conversationID, err := s.activeTimeline()
	if err != nil {
		return false
	}
	return s.typing.EmitLocal(ctx, conversationID)
}

// Typing returns who is typing in the active conversation.
func (s *Session) Typing() []typing.Entry {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	if conversationID == "" {
		return nil
	}
	return s.typing.Active(conversationID)
}

// SetStatus publishes the local user's presence and records it locally.
func (s *Session) SetStatus(ctx context.Context, status chatsync.PresenceStatus, customStatus string) error {
	if !s.transport.Connected() {
		s.logger.Warn("not connected, presence not sent", "status", status)
		return chatsync.ErrNotConnected
	}
	ev := chatsync.PresenceEvent{UserID: s.self.ID, Status: status, CustomStatus: customStatus}
	if err := s.transport.Send(ctx, chatsync.EventPresenceSet, ev); err != nil {
		return err
	}
	s.presence.Apply(ev)
	return nil
}

// Presence returns the last known presence of userID.
func (s *Session) Presence(userID string) (presence.Presence, bool) {
	return s.presence.Get(userID)
}

// Reactions returns the reaction aggregates of a message.
func (s *Session) Reactions(messageID string) []reactions.Aggregate {
	return s.reactions.For(messageID)
}

// Snapshot returns the sequence of the active conversation.
func (s *Session) Snapshot() timeline.Snapshot {
	tl, _, err := s.activeTimeline()
	if err != nil {
		return timeline.Snapshot{}
	}
	return tl.Snapshot()
}

// Rows returns display rows for the active conversation as seen at now.
func (s *Session) Rows(now time.Time) []render.Row {
	return render.Rows(s.Snapshot(), s.reactions, now, s.loc)
}

// Subscribe registers fn to receive the active conversation's snapshot
// after every change.
func (s *Session) Subscribe(fn func(timeline.Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(slices.Clip(s.subs), subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(slices.Clone(s.subs), func(sub subscriber) bool { return sub.id == id })
		})
	}
}

// follow returns the timeline subscriber that passes tl's snapshots on while
// tl is the active timeline.
func (s *Session) follow(tl *timeline.Timeline) func(timeline.Snapshot) {
	return func(snap timeline.Snapshot) {
		s.mu.Lock()
		if s.current != tl {
			s.mu.Unlock()
			return
		}
		subs := s.subs
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(snap)
		}
	}
}

func (s *Session) activeTimeline() (*timeline.Timeline, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, "", ErrNoConversation
	}
	return s.current, s.active, nil
}

// visible returns the active timeline if it belongs to conversationID.
func (s *Session) visible(conversationID string) (*timeline.Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || conversationID == "" || conversationID != s.active {
		return nil, false
	}
	return s.current, true
}
