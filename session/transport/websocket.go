package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type WebSocketTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	url          string
	dialer       *websocket.Dialer
	headers      http.Header
	open         bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       zerolog.Logger
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.logger = logger
	}
}

func NewWebSocket(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
		logger:       zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return nil
	}

	t.logger.Debug().Str("url", t.url).Msg("websocket connecting")

	dialer := *t.dialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		t.logger.Warn().Err(err).Str("url", t.url).Msg("websocket connect failed")
		return err
	}

	t.conn = conn
	t.open = true

	t.logger.Debug().Str("url", t.url).Msg("websocket connected")

	return nil
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open || t.conn == nil {
		return errors.New("not connected")
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.logger.Warn().Err(err).Msg("websocket send failed")
		return err
	}

	return nil
}

func (t *WebSocketTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	if !t.open || t.conn == nil {
		t.mu.Unlock()
		return nil, errors.New("not connected")
	}
	conn := t.conn

	if t.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			t.mu.Unlock()
			return nil, err
		}
	}
	t.mu.Unlock()

	_, message, err := conn.ReadMessage()
	if err != nil {
		t.logger.Debug().Err(err).Msg("websocket read ended")
		return nil, err
	}

	return message, nil
}

func (t *WebSocketTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.open && t.conn != nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open || t.conn == nil {
		return nil
	}

	t.logger.Debug().Msg("websocket closing")

	// Best effort; the peer may already be gone.
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	err := t.conn.Close()

	t.open = false
	t.conn = nil

	return err
}
