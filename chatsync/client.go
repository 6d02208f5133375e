package chatsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eoncord/chatsync-go/chatsync/internal"
)

// Client is the push channel to the chat server. One Client is shared by
// every conversation; events are multiplexed by the conversation id in
// their payloads.
//
// Unexpected closure of the connection, or a failed dial, schedules a
// reconnect after Config.ReconnectDelay for at most
// Config.MaxReconnectAttempts consecutive attempts. Disconnect suppresses
// reconnection until the next Connect.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher Dispatcher

	mu             sync.Mutex
	state          ConnectionState
	conn           Conn
	cancel         context.CancelFunc
	inflight       *dialAttempt
	intentional    bool
	attempts       int
	reconnectTimer *time.Timer
	onState        func(StateEvent)
}

type dialAttempt struct {
	done chan struct{}
	err  error
}

// NewClient constructs a client with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		logger: discardLogger,
	}
	c.dispatcher.SetLogger(c.logger)
	return c
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
	c.dispatcher.SetLogger(l)
}

// Subscribe registers h for eventType; use EventAny to receive everything.
// See Dispatcher for ordering and re-entrancy guarantees.
func (c *Client) Subscribe(eventType string, h Handler) (unsubscribe func()) {
	return c.dispatcher.Subscribe(eventType, h)
}

// OnError registers callback for errors.
func (c *Client) OnError(fn func(error)) { c.dispatcher.SetOnError(fn) }

// OnStateChanged registers callback for connection state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect opens the channel. It returns immediately when already
// connected; concurrent callers share the same dial. Cancelling ctx stops
// the wait, not the dial.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.Dial == nil {
		if c.cfg.URL == "" {
			return NewError(ErrorInvalidConfig, "empty URL")
		}
		if _, err := url.Parse(c.cfg.URL); err != nil {
			return WrapError(ErrorInvalidConfig, "invalid URL", err)
		}
	}

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.intentional = false
	if c.inflight == nil {
		// An explicit connect gets a fresh reconnect budget.
		c.attempts = 0
	}
	old := c.state
	attempt, started := c.startDialLocked()
	c.mu.Unlock()
	if started {
		c.notify(StateEvent{OldState: old, NewState: StateConnecting})
		go c.dial(attempt)
	}

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes one event. It fails with ErrNotConnected when the channel is
// not open; nothing is queued or retried.
func (c *Client) Send(ctx context.Context, eventType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	logger := c.logger
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	if err := conn.Write(ctx, Outgoing{Type: eventType, Payload: payload}); err != nil {
		logger.Warn("send failed", "event", eventType, "error", err)
		return WrapError(ErrorConnection, "failed to send "+eventType, err)
	}
	logger.Debug("sent", "event", eventType)
	return nil
}

// Disconnect closes the channel and cancels any scheduled reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.intentional = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	old := c.state
	c.state = StateDisconnected
	c.attempts = 0
	c.logger.Info("disconnecting")
	c.mu.Unlock()

	if old != StateDisconnected {
		c.notify(StateEvent{OldState: old, NewState: StateDisconnected})
	}
	if conn != nil {
		return conn.Close("client close")
	}
	return nil
}

// startDialLocked returns the in-flight attempt, creating one if needed.
// The caller starts the dial for a new attempt after releasing c.mu.
func (c *Client) startDialLocked() (*dialAttempt, bool) {
	if c.inflight != nil {
		return c.inflight, false
	}
	a := &dialAttempt{done: make(chan struct{})}
	c.inflight = a
	c.state = StateConnecting
	c.logger.Info("connecting", "url", c.cfg.URL)
	return a, true
}

func (c *Client) dial(a *dialAttempt) {
	ctx := context.Background()
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	conn, err := c.dialer()(ctx, c.cfg.URL, c.cfg.Token)

	c.mu.Lock()
	c.inflight = nil
	logger := c.logger
	if err != nil {
		old := c.state
		c.state = StateDisconnected
		retry := !c.intentional
		c.mu.Unlock()

		a.err = WrapError(ErrorConnection, "failed to connect", err)
		logger.Warn("connect failed", "error", err)
		if old != StateDisconnected {
			c.notify(StateEvent{OldState: old, NewState: StateDisconnected, Error: a.err})
		}
		close(a.done)
		if retry {
			c.scheduleReconnect()
		}
		return
	}
	if c.intentional {
		c.mu.Unlock()
		_ = conn.Close("client close")
		a.err = NewError(ErrorDisconnected, "disconnected while connecting")
		close(a.done)
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.attempts = 0
	c.state = StateConnected
	c.mu.Unlock()

	logger.Info("connected")
	c.notify(StateEvent{OldState: StateConnecting, NewState: StateConnected})
	go c.readLoop(runCtx, conn)
	close(a.done)
}

func (c *Client) dialer() DialFunc {
	if c.cfg.Dial != nil {
		return c.cfg.Dial
	}
	return func(ctx context.Context, url, token string) (Conn, error) {
		conn, err := internal.Dial(ctx, url, token, c.cfg.ReadTimeout, c.cfg.WriteTimeout)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		var ev Event
		if err := conn.Read(ctx, &ev); err != nil {
			c.handleClose(ctx, conn, err)
			return
		}
		c.dispatcher.Dispatch(ev)
	}
}

func (c *Client) handleClose(ctx context.Context, conn Conn, err error) {
	expected := isExpectedDisconnect(ctx, err)

	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already detached this connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	intentional := c.intentional
	old := c.state
	c.state = StateDisconnected
	logger := c.logger
	c.mu.Unlock()

	_ = conn.Close("read error")
	if intentional {
		return
	}

	var cause error
	if expected {
		logger.Info("connection closed by server")
	} else {
		cause = WrapError(ErrorDisconnected, "connection lost", err)
		logger.Warn("read loop exit", "error", err)
		c.dispatcher.Report(cause)
	}
	c.notify(StateEvent{OldState: old, NewState: StateDisconnected, Error: cause})
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intentional || c.reconnectTimer != nil || c.state != StateDisconnected {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Warn("max reconnection attempts reached", "attempts", c.attempts)
		return
	}
	c.attempts++
	c.logger.Info("scheduling reconnection",
		"attempt", c.attempts,
		"max", c.cfg.MaxReconnectAttempts,
		"delay", c.cfg.ReconnectDelay)
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, c.reconnect)
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.intentional || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	old := c.state
	attempt, started := c.startDialLocked()
	c.mu.Unlock()
	if started {
		c.notify(StateEvent{OldState: old, NewState: StateConnecting})
		c.dial(attempt)
	}
}

func (c *Client) notify(ev StateEvent) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	return internal.IsNormalClosure(err)
}
