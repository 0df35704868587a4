package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Randa-Software/libranda-client/session/transport"
)

const DefaultReconnectInterval = 5 * time.Second

// Session owns one transport connection and everything layered on it:
// the lifecycle state machine, the event registry, the identity
// handshake, outbound metadata and the plugin host.
type Session struct {
	mu       sync.Mutex
	state    State
	conn     transport.Transport
	endpoint string
	factory  transport.Factory

	autoReconnect        bool
	reconnectInterval    time.Duration
	maxReconnectInterval time.Duration
	retry                *backoff.Backoff
	reconnectTimer       *time.Timer

	registry *Registry
	identity *identity
	metadata *metadataStore
	plugins  *pluginHost

	instanceID string
	logger     zerolog.Logger
	metrics    *sessionMetrics
	registerer prometheus.Registerer
}

type Option func(*Session)

// WithAutoReconnect controls whether an unexpected close schedules a
// reconnect attempt. Defaults to true.
func WithAutoReconnect(enabled bool) Option {
	return func(s *Session) {
		s.autoReconnect = enabled
	}
}

func WithReconnectInterval(d time.Duration) Option {
	return func(s *Session) {
		s.reconnectInterval = d
	}
}

// WithMaxReconnectInterval enables exponential growth of the reconnect
// delay up to d. Without it the delay stays fixed at the reconnect
// interval.
func WithMaxReconnectInterval(d time.Duration) Option {
	return func(s *Session) {
		s.maxReconnectInterval = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithTransportFactory(factory transport.Factory) Option {
	return func(s *Session) {
		s.factory = factory
	}
}

// WithMetricsRegisterer registers the session's frame and reconnect
// counters with r.
func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(s *Session) {
		s.registerer = r
	}
}

func New(endpoint string, opts ...Option) *Session {
	if endpoint == "" {
		endpoint = transport.DefaultEndpoint
	}

	s := &Session{
		state:             StateDisconnected,
		endpoint:          endpoint,
		factory:           transport.DefaultFactory,
		autoReconnect:     true,
		reconnectInterval: DefaultReconnectInterval,
		identity:          &identity{},
		metadata:          newMetadataStore(),
		instanceID:        uuid.New().String(),
		logger:            zerolog.Nop(),
		metrics:           newSessionMetrics(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With().Str("session", s.instanceID).Logger()

	maxDelay := s.maxReconnectInterval
	factor := 2.0
	if maxDelay <= 0 {
		maxDelay = s.reconnectInterval
		factor = 1
	}
	s.retry = &backoff.Backoff{
		Min:    s.reconnectInterval,
		Max:    maxDelay,
		Factor: factor,
	}

	s.registry = NewRegistry(s.logger)
	s.plugins = newPluginHost(s, s.logger)

	if s.registerer != nil {
		if err := s.metrics.register(s.registerer); err != nil {
			s.logger.Error().Err(err).Msg("metrics registration failed")
		}
	}

	return s
}

// Connect dials the configured endpoint. It is a no-op while a connect
// attempt is in flight or a connection is live. A dial failure is
// reported both as the returned error and through the system:error
// channel, and counts as an unexpected close for the reconnect policy.
func (s *Session) Connect() error {
	return s.connect(false)
}

// connect transitions to Connecting and dials. viaPolicy marks a
// timer-driven attempt, which must re-check the reconnect flag inside
// the same critical section that claims the transition so a concurrent
// Disconnect can never be followed by a policy dial.
func (s *Session) connect(viaPolicy bool) error {
	s.mu.Lock()
	if viaPolicy && !s.autoReconnect {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.stopReconnectTimerLocked()
	conn := s.factory(s.endpoint)
	s.conn = conn
	s.mu.Unlock()

	if err := conn.Connect(context.Background()); err != nil {
		s.logger.Warn().Err(err).Str("endpoint", s.endpoint).Msg("connect failed")

		s.mu.Lock()
		if s.conn != conn {
			// Disconnect ran while we were dialing.
			s.mu.Unlock()
			return fmt.Errorf("connect %s: %w", s.endpoint, err)
		}
		s.conn = nil
		s.state = StateDisconnected
		reconnect := s.autoReconnect
		s.mu.Unlock()

		s.registry.Dispatch(SystemNamespace, EventError, err)
		s.registry.Dispatch(SystemNamespace, EventDisconnected, nil)
		if reconnect {
			s.scheduleReconnect()
		}

		return fmt.Errorf("connect %s: %w", s.endpoint, err)
	}

	s.mu.Lock()
	if s.conn != conn {
		// Disconnect ran while we were dialing.
		s.mu.Unlock()
		return conn.Close()
	}
	s.state = StateConnected
	s.stopReconnectTimerLocked()
	s.retry.Reset()
	s.mu.Unlock()

	s.logger.Debug().Str("endpoint", s.endpoint).Msg("connected")

	// Open precedes any inbound dispatch, so the connected event goes
	// out before the read loop can deliver a frame.
	s.registry.Dispatch(SystemNamespace, EventConnected, nil)

	go s.readLoop(conn)

	return nil
}

// Disconnect closes the connection and permanently disables the
// reconnect policy for this session. All plugins are torn down and the
// client id is cleared. Safe to call when already disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.autoReconnect = false
	s.stopReconnectTimerLocked()
	conn := s.conn
	s.conn = nil
	wasLive := s.state != StateDisconnected
	s.state = StateDisconnected
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	s.identity.reset()
	s.plugins.teardown()

	if wasLive {
		s.registry.Dispatch(SystemNamespace, EventDisconnected, nil)
	}

	s.logger.Debug().Msg("disconnected")

	return err
}

// Send writes one frame synchronously. The frame's data always carries
// a metadata key holding the metadata snapshot taken at send time.
func (s *Session) Send(namespace, event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || !conn.IsOpen() {
		return ErrNotConnected
	}

	frame := Frame{
		Namespace: namespace,
		Event:     event,
		Data:      mergeMetadata(data, s.metadata.Snapshot()),
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	if err := conn.Send(raw); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}

	s.metrics.framesSent.Inc()

	return nil
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	return conn != nil && conn.IsOpen()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// RegisterEvent adds a handler for namespace/event and returns its
// unregister func.
func (s *Session) RegisterEvent(namespace, event string, handler Handler) func() {
	return s.registry.Register(namespace, event, handler)
}

// SetMetadata shallow-merges partial into the session metadata.
func (s *Session) SetMetadata(partial map[string]any) {
	s.metadata.Merge(partial)
}

// Metadata returns an independent copy of the current metadata.
func (s *Session) Metadata() map[string]any {
	return s.metadata.Snapshot()
}

// ClientID returns the server-assigned id, or "" before the handshake
// completes.
func (s *Session) ClientID() string {
	return s.identity.ID()
}

// Ready calls cb with the client id, immediately if the handshake has
// already completed. Only the most recent pending callback is kept.
func (s *Session) Ready(cb func(clientID string)) {
	s.identity.Ready(cb)
}

func (s *Session) RegisterPlugin(p Plugin) (func(), error) {
	return s.plugins.register(p)
}

func (s *Session) UnregisterPlugin(id string) {
	s.plugins.unregister(id)
}

// Plugins returns a snapshot of the registered plugins.
func (s *Session) Plugins() []Plugin {
	return s.plugins.snapshot()
}

func (s *Session) readLoop(conn transport.Transport) {
	for {
		raw, err := conn.Receive()
		if err != nil {
			s.mu.Lock()
			live := s.conn == conn
			s.mu.Unlock()

			if live {
				s.logger.Debug().Err(err).Msg("transport closed")
				s.registry.Dispatch(SystemNamespace, EventError, err)
			}
			s.handleClose(conn)
			return
		}

		s.handleFrame(raw)
	}
}

// handleClose runs the close reaction for conn. A close observed after
// the session already moved on (explicit disconnect, replaced
// transport) is stale and ignored.
func (s *Session) handleClose(conn transport.Transport) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateDisconnected
	reconnect := s.autoReconnect
	s.mu.Unlock()

	s.identity.reset()
	s.registry.Dispatch(SystemNamespace, EventDisconnected, nil)

	if reconnect {
		s.scheduleReconnect()
	}
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if !s.autoReconnect || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	delay := s.retry.Duration()
	s.stopReconnectTimerLocked()
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.metrics.reconnects.Inc()
		if err := s.connect(true); err != nil {
			s.logger.Warn().Err(err).Msg("reconnect attempt failed")
		}
	})
	s.mu.Unlock()

	s.logger.Debug().Dur("delay", delay).Msg("reconnect scheduled")
}

func (s *Session) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) handleFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.metrics.framesDropped.Inc()
		s.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if frame.Namespace == "" || frame.Event == "" {
		s.metrics.framesDropped.Inc()
		s.logger.Warn().
			Str("namespace", frame.Namespace).
			Str("event", frame.Event).
			Msg("dropping frame without namespace or event")
		return
	}

	s.metrics.framesReceived.Inc()

	// Identity resolves before the generic dispatch so a system:init
	// handler observes the assigned id.
	if frame.Namespace == SystemNamespace && frame.Event == EventInit {
		if data, ok := frame.Data.(map[string]any); ok {
			if id, ok := data["clientId"].(string); ok && id != "" {
				s.identity.resolve(id)
			}
		}
	}

	s.registry.Dispatch(frame.Namespace, frame.Event, frame.Data)
}

// mergeMetadata builds the outbound data payload. Object-shaped data
// gets a metadata key injected; nil data becomes just the metadata;
// any other value is kept under a value key so it is never dropped.
func mergeMetadata(data any, meta map[string]any) map[string]any {
	out := make(map[string]any)

	switch v := data.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			out[k] = val
		}
	default:
		merged := false
		if raw, err := json.Marshal(data); err == nil {
			var m map[string]any
			if json.Unmarshal(raw, &m) == nil {
				for k, val := range m {
					out[k] = val
				}
				merged = true
			}
		}
		if !merged {
			out["value"] = v
		}
	}

	out["metadata"] = meta

	return out
}
