package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Plugin is an extension identified by a unique id. Plugins that also
// implement InitPlugin or CleanupPlugin get lifecycle calls.
type Plugin interface {
	ID() string
}

// InitPlugin is initialized with its restricted context right after
// registration.
type InitPlugin interface {
	Plugin
	Init(ctx PluginContext) error
}

// CleanupPlugin is torn down on unregister and on session disconnect.
type CleanupPlugin interface {
	Plugin
	Cleanup() error
}

// PluginContext is the capability set a plugin gets: it can send and
// observe events but never touches the transport.
type PluginContext interface {
	Send(namespace, event string, data any) error
	RegisterEvent(namespace, event string, handler Handler) func()
	Has(capability string) bool
}

const (
	CapabilitySend          = "send"
	CapabilityRegisterEvent = "registerEvent"
)

type pluginContext struct {
	session *Session
}

func (c *pluginContext) Send(namespace, event string, data any) error {
	return c.session.Send(namespace, event, data)
}

func (c *pluginContext) RegisterEvent(namespace, event string, handler Handler) func() {
	return c.session.RegisterEvent(namespace, event, handler)
}

func (c *pluginContext) Has(capability string) bool {
	switch capability {
	case CapabilitySend, CapabilityRegisterEvent:
		return true
	}
	return false
}

type pluginHost struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string
	session *Session
	logger  zerolog.Logger
}

func newPluginHost(s *Session, logger zerolog.Logger) *pluginHost {
	return &pluginHost{
		plugins: make(map[string]Plugin),
		session: s,
		logger:  logger,
	}
}

func (h *pluginHost) register(p Plugin) (func(), error) {
	if p == nil || p.ID() == "" {
		return nil, ErrPluginID
	}

	id := p.ID()

	h.mu.Lock()
	if _, exists := h.plugins[id]; exists {
		h.mu.Unlock()
		return nil, ErrPluginExists
	}
	h.plugins[id] = p
	h.order = append(h.order, id)
	h.mu.Unlock()

	if init, ok := p.(InitPlugin); ok {
		h.initialize(id, init)
	}

	return func() { h.unregister(id) }, nil
}

func (h *pluginHost) initialize(id string, init InitPlugin) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().Str("plugin", id).Interface("panic", rec).Msg("plugin init panicked")
		}
	}()

	if err := init.Init(&pluginContext{session: h.session}); err != nil {
		h.logger.Error().Str("plugin", id).Err(err).Msg("plugin init failed")
	}
}

func (h *pluginHost) unregister(id string) {
	h.mu.Lock()
	p, exists := h.plugins[id]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.plugins, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	h.cleanup(p)
}

func (h *pluginHost) cleanup(p Plugin) {
	cleaner, ok := p.(CleanupPlugin)
	if !ok {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().Str("plugin", p.ID()).Interface("panic", rec).Msg("plugin cleanup panicked")
		}
	}()

	if err := cleaner.Cleanup(); err != nil {
		h.logger.Error().Str("plugin", p.ID()).Err(err).Msg("plugin cleanup failed")
	}
}

// snapshot returns the registered plugins in registration order.
func (h *pluginHost) snapshot() []Plugin {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Plugin, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.plugins[id])
	}

	return out
}

// teardown unregisters every plugin, running cleanups in registration
// order. A failing cleanup never stops the rest.
func (h *pluginHost) teardown() {
	for _, p := range h.snapshot() {
		h.unregister(p.ID())
	}
}
