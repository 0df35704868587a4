package session

import (
	"sync"

	"github.com/rs/zerolog"
)

type registration struct {
	fn Handler
}

// Registry maps namespace and event name to a set of handlers. A
// handler registered twice is two independent entries, each with its
// own unregister handle.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string][]*registration
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]map[string][]*registration),
		logger:   logger,
	}
}

// Register adds a handler and returns an idempotent unregister func
// scoped to exactly this registration.
func (r *Registry) Register(namespace, event string, fn Handler) func() {
	entry := &registration{fn: fn}

	r.mu.Lock()
	events, ok := r.handlers[namespace]
	if !ok {
		events = make(map[string][]*registration)
		r.handlers[namespace] = events
	}
	events[event] = append(events[event], entry)
	r.mu.Unlock()

	return func() {
		r.remove(namespace, event, entry)
	}
}

func (r *Registry) remove(namespace, event string, entry *registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events, ok := r.handlers[namespace]
	if !ok {
		return
	}

	list := events[event]
	for i, e := range list {
		if e == entry {
			events[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	if len(events[event]) == 0 {
		delete(events, event)
	}
	if len(events) == 0 {
		delete(r.handlers, namespace)
	}
}

// Dispatch invokes every handler currently registered for the pair, in
// registration order. Handlers run against a snapshot, so registering
// or unregistering during dispatch is safe. A panicking handler is
// logged and does not stop its siblings.
func (r *Registry) Dispatch(namespace, event string, data any) {
	r.mu.RLock()
	var snapshot []*registration
	if events, ok := r.handlers[namespace]; ok {
		list := events[event]
		snapshot = make([]*registration, len(list))
		copy(snapshot, list)
	}
	r.mu.RUnlock()

	for _, entry := range snapshot {
		r.invoke(namespace, event, entry, data)
	}
}

func (r *Registry) invoke(namespace, event string, entry *registration, data any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("namespace", namespace).
				Str("event", event).
				Interface("panic", rec).
				Msg("event handler panicked")
		}
	}()

	entry.fn(data)
}
