package chatsync

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives an incoming event.
type Handler func(Event)

// Dispatcher routes incoming events to subscribed handlers. The zero value
// is ready to use.
//
// Dispatch is synchronous: handlers for the event's type run in
// subscription order, followed by EventAny handlers. A handler that panics
// is recovered and reported, and the remaining handlers still run. Dispatch
// iterates a copy of the handler list, so handlers may subscribe or
// unsubscribe while being called; such changes apply from the next event.
type Dispatcher struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]subscription
	onError  func(error)
	logger   *slog.Logger
}

type subscription struct {
	id uint64
	fn Handler
}

// SetOnError registers the callback for protocol, decode and handler
// errors.
func (d *Dispatcher) SetOnError(fn func(error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

// SetLogger sets the logger used for recovered handler panics.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

// Subscribe registers h for eventType (or EventAny) and returns a function
// that removes it. Calling the returned function more than once is safe.
func (d *Dispatcher) Subscribe(eventType string, h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	d.mu.Lock()
	if d.handlers == nil {
		d.handlers = make(map[string][]subscription)
	}
	d.nextID++
	id := d.nextID
	d.handlers[eventType] = append(d.handlers[eventType], subscription{id: id, fn: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(eventType, id) })
	}
}

func (d *Dispatcher) remove(eventType string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[eventType]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(d.handlers, eventType)
		} else {
			d.handlers[eventType] = next
		}
		return
	}
}

// Handlers returns the number of handlers subscribed to eventType.
func (d *Dispatcher) Handlers(eventType string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[eventType])
}

// Dispatch delivers ev to its handlers.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev.Type == EventError {
		var pe ProtocolError
		if err := ev.Decode(&pe); err != nil {
			d.fireError(err)
		} else {
			d.fireError(FromProtocolError(&pe))
		}
	}

	d.mu.Lock()
	typed := d.handlers[ev.Type]
	var wildcard []subscription
	if ev.Type != EventAny {
		wildcard = d.handlers[EventAny]
	}
	d.mu.Unlock()

	for _, s := range typed {
		d.call(s.fn, ev)
	}
	for _, s := range wildcard {
		d.call(s.fn, ev)
	}
}

func (d *Dispatcher) call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			logger := d.logger
			d.mu.Unlock()
			LoggerOrDiscard(logger).Error("event handler panicked", "event", ev.Type, "panic", r)
			d.fireError(NewError(ErrorHandlerPanic, fmt.Sprintf("handler for %s panicked: %v", ev.Type, r)))
		}
	}()
	fn(ev)
}

// Report hands err to the error callback.
func (d *Dispatcher) Report(err error) {
	d.fireError(err)
}

func (d *Dispatcher) fireError(err error) {
	d.mu.Lock()
	fn := d.onError
	d.mu.Unlock()
	if fn != nil && err != nil {
		fn(err)
	}
}
