// Package history loads cursor-paginated conversation history into a
// timeline.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/rest"
)

// DefaultPageSize is the number of messages requested per page.
const DefaultPageSize = 50

var (
	// ErrStale is returned when a page arrives after its conversation stopped
	// being active. The page is discarded.
	ErrStale = errors.New("history: conversation no longer active")

	// ErrNotActive is returned for a load of a conversation that was never
	// activated.
	ErrNotActive = errors.New("history: conversation not active")
)

// Fetcher fetches one page of messages. *rest.Client satisfies it.
type Fetcher interface {
	ListMessages(ctx context.Context, conversationID string, limit int, cursor string) (*rest.Page, error)
}

// Sink receives loaded pages. *timeline.Timeline satisfies it. No loader
// lock is held while a page is applied, so a sink's subscribers may call
// back into the loader.
type Sink interface {
	Replace(page []chatsync.Message) int
	PrependHistoryPage(page []chatsync.Message) int
}

// Result describes the outcome of a load.
type Result struct {
	// Skipped is set when nothing was requested: a load was already in
	// flight, or no older history remains.
	Skipped    bool
	Added      int
	NextCursor string
	HasMore    bool
}

// State is the pagination state of the active conversation.
type State struct {
	ConversationID string
	Loaded         bool
	Loading        bool
	HasMore        bool
	Cursor         string
	Err            error
}

type conversation struct {
	id         string
	generation uint64
	sink       Sink

	loaded  bool
	loading bool
	hasMore bool
	cursor  string

	err          error
	failedCursor string
}

// Loader fetches history for the active conversation. At most one request
// is in flight per activation; results that arrive after their activation
// ended are dropped. A page only ever reaches the sink of the activation
// that requested it.
type Loader struct {
	fetcher  Fetcher
	pageSize int
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	active     *conversation
}

// NewLoader creates a loader. pageSize <= 0 selects DefaultPageSize.
func NewLoader(f Fetcher, pageSize int, logger *slog.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Loader{
		fetcher:  f,
		pageSize: pageSize,
		logger:   chatsync.LoggerOrDiscard(logger),
	}
}

// Activate makes conversationID the active conversation, with pages going
// to sink. Any in-flight load for the previous activation becomes stale.
func (l *Loader) Activate(conversationID string, sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.active = &conversation{
		id:         conversationID,
		generation: l.generation,
		sink:       sink,
		hasMore:    true,
	}
}

// Deactivate drops the active conversation.
func (l *Loader) Deactivate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.active = nil
}

// LoadPage fetches up to the page size of messages of conversationID older
// than cursor, or the newest page when cursor is empty. The newest page
// replaces the sink's sequence; older pages are prepended.
func (l *Loader) LoadPage(ctx context.Context, conversationID, cursor string) (Result, error) {
	l.mu.Lock()
	c := l.active
	if c == nil || c.id != conversationID {
		l.mu.Unlock()
		return Result{}, ErrNotActive
	}
	if c.loading {
		l.mu.Unlock()
		return Result{Skipped: true, NextCursor: c.cursor, HasMore: c.hasMore}, nil
	}
	c.loading = true
	generation := c.generation
	l.mu.Unlock()

	page, err := l.fetcher.ListMessages(ctx, conversationID, l.pageSize, cursor)

	l.mu.Lock()
	if l.active != c || c.generation != generation {
		l.mu.Unlock()
		l.logger.Debug("discarding stale history page", "conversation", conversationID, "cursor", cursor)
		return Result{}, ErrStale
	}
	c.loading = false
	if err != nil {
		c.err = err
		c.failedCursor = cursor
		l.mu.Unlock()
		l.logger.Warn("history load failed", "conversation", conversationID, "cursor", cursor, "error", err)
		return Result{}, fmt.Errorf("load history of %s: %w", conversationID, err)
	}
	c.err = nil
	c.loaded = true
	c.cursor = page.NextCursor
	c.hasMore = page.NextCursor != ""
	sink := c.sink
	res := Result{NextCursor: c.cursor, HasMore: c.hasMore}
	l.mu.Unlock()

	if cursor == "" {
		res.Added = sink.Replace(page.Items)
	} else {
		res.Added = sink.PrependHistoryPage(page.Items)
	}
	l.logger.Debug("history page loaded", "conversation", conversationID, "added", res.Added, "has_more", res.HasMore)
	return res, nil
}

// LoadLatest loads the newest page of the active conversation.
func (l *Loader) LoadLatest(ctx context.Context) (Result, error) {
	id, _, _, err := l.position()
	if err != nil {
		return Result{}, err
	}
	return l.LoadPage(ctx, id, "")
}

// LoadOlder loads the page before the oldest one loaded so far. It loads the
// newest page if none has been loaded yet.
func (l *Loader) LoadOlder(ctx context.Context) (Result, error) {
	id, cursor, hasMore, err := l.position()
	if err != nil {
		return Result{}, err
	}
	if cursor == "" && !hasMore {
		return Result{Skipped: true}, nil
	}
	return l.LoadPage(ctx, id, cursor)
}

// Retry repeats the most recent failed request of the active conversation.
// It is a no-op when the last request succeeded.
func (l *Loader) Retry(ctx context.Context) (Result, error) {
	l.mu.Lock()
	c := l.active
	if c == nil {
		l.mu.Unlock()
		return Result{}, ErrNotActive
	}
	if c.err == nil {
		l.mu.Unlock()
		return Result{Skipped: true, NextCursor: c.cursor, HasMore: c.hasMore}, nil
	}
	id, cursor := c.id, c.failedCursor
	l.mu.Unlock()
	return l.LoadPage(ctx, id, cursor)
}

// State returns the pagination state of the active conversation.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.active
	if c == nil {
		return State{}
	}
	return State{
		ConversationID: c.id,
		Loaded:         c.loaded,
		Loading:        c.loading,
		HasMore:        c.hasMore,
		Cursor:         c.cursor,
		Err:            c.err,
	}
}

func (l *Loader) position() (id, cursor string, hasMore bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.active
	if c == nil {
		return "", "", false, ErrNotActive
	}
	if !c.loaded {
		return c.id, "", true, nil
	}
	return c.id, c.cursor, c.hasMore, nil
}
