package events

import (
	"log/slog"
	"sync"
)

// EventConnect is the event type dispatched when the relay socket opens.
const EventConnect = "connect"

// Frequency controls how often a listener fires.
type Frequency int

const (
	Repeat Frequency = iota
	Once
)

// String returns the frequency name.
func (f Frequency) String() string {
	switch f {
	case Repeat:
		return "repeat"
	case Once:
		return "once"
	default:
		return "unknown"
	}
}

// Listener is a registered callback. Registrations are matched by the
// *Listener pointer, so keep the handle to remove it later.
type Listener struct {
	fn func(args ...any)
}

// NewListener wraps fn in a listener handle.
func NewListener(fn func(args ...any)) *Listener {
	return &Listener{fn: fn}
}

type entry struct {
	listener *Listener
	freq     Frequency
}

// PanicHandler is told about listeners that panicked during dispatch.
type PanicHandler func(event string, recovered any)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPanicHandler sets a hook invoked after a listener panic is recovered.
func WithPanicHandler(h PanicHandler) Option {
	return func(r *Registry) {
		r.onPanic = h
	}
}

// Registry maps event types to ordered listener entries.
// It is safe for concurrent use.
type Registry struct {
	logger  *slog.Logger
	onPanic PanicHandler

	mu        sync.Mutex
	listeners map[string][]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:    slog.Default(),
		listeners: make(map[string][]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On registers l to fire on every dispatch of event.
func (r *Registry) On(event string, l *Listener) {
	r.add(event, l, Repeat)
}

// Once registers l to fire on the next dispatch of event only.
func (r *Registry) Once(event string, l *Listener) {
	r.add(event, l, Once)
}

func (r *Registry) add(event string, l *Listener, freq Frequency) {
	if l == nil || l.fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners[event] = append(r.listeners[event], &entry{listener: l, freq: freq})
	r.mu.Unlock()
}

// RemoveListener removes the first registration of l under event.
// It reports whether a registration was found.
func (r *Registry) RemoveListener(event string, l *Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.listeners[event] {
		if e.listener == l {
			r.removeLocked(event, e)
			return true
		}
	}
	return false
}

// RemoveAllListeners drops every registration under event.
func (r *Registry) RemoveAllListeners(event string) {
	r.mu.Lock()
	delete(r.listeners, event)
	r.mu.Unlock()
}

// ListenerCount returns the number of registrations under event.
func (r *Registry) ListenerCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[event])
}

// TotalListenerCount returns the number of registrations across all events.
func (r *Registry) TotalListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, entries := range r.listeners {
		total += len(entries)
	}
	return total
}

// Trigger delivers args to the listeners registered under event, in
// registration order, and returns how many were invoked.
func (r *Registry) Trigger(event string, args ...any) int {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.listeners[event]))
	copy(snapshot, r.listeners[event])
	r.mu.Unlock()

	invoked := 0
	for _, e := range snapshot {
		if e.freq == Once && !r.claim(event, e) {
			continue
		}
		r.invoke(event, e.listener, args)
		invoked++
	}
	return invoked
}

// OnConnect registers a once listener on EventConnect and returns a
// channel that is closed when it fires.
func (r *Registry) OnConnect() <-chan struct{} {
	done := make(chan struct{})
	r.Once(EventConnect, NewListener(func(...any) {
		close(done)
	}))
	return done
}

// claim removes a once entry ahead of its invocation. It returns false if
// another pass already took it.
func (r *Registry) claim(event string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(event, e)
}

func (r *Registry) removeLocked(event string, target *entry) bool {
	entries := r.listeners[event]
	for i, e := range entries {
		if e != target {
			continue
		}
		if len(entries) == 1 {
			delete(r.listeners, event)
			return true
		}
		next := make([]*entry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		r.listeners[event] = next
		return true
	}
	return false
}

func (r *Registry) invoke(event string, l *Listener, args []any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked", "event", event, "panic", rec)
			if r.onPanic != nil {
				r.onPanic(event, rec)
			}
		}
	}()
	l.fn(args...)
}
