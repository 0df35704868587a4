package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LongPollingTransport speaks a simple HTTP fallback protocol:
// POST /connect returns a session id, GET /poll drains queued frames,
// POST /send pushes one frame, POST /disconnect ends the session.
type LongPollingTransport struct {
	mu            sync.Mutex
	client        *http.Client
	baseURL       string
	sessionID     string
	open          bool
	incomingQueue chan []byte
	headers       http.Header

	ctx        context.Context
	cancelFunc context.CancelFunc

	pollInterval time.Duration
	timeout      time.Duration
	logger       zerolog.Logger
}

type LongPollingOption func(*LongPollingTransport)

func WithLongPollingHeaders(headers http.Header) LongPollingOption {
	return func(t *LongPollingTransport) {
		for k, v := range headers {
			t.headers[k] = v
		}
	}
}

func WithPollInterval(interval time.Duration) LongPollingOption {
	return func(t *LongPollingTransport) {
		t.pollInterval = interval
	}
}

func WithTimeout(timeout time.Duration) LongPollingOption {
	return func(t *LongPollingTransport) {
		t.timeout = timeout
	}
}

func WithLongPollingLogger(logger zerolog.Logger) LongPollingOption {
	return func(t *LongPollingTransport) {
		t.logger = logger
	}
}

func NewLongPolling(baseURL string, opts ...LongPollingOption) *LongPollingTransport {
	t := &LongPollingTransport{
		client:        &http.Client{},
		baseURL:       baseURL,
		headers:       make(http.Header),
		incomingQueue: make(chan []byte, 100),
		pollInterval:  1 * time.Second,
		timeout:       30 * time.Second,
		logger:        zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *LongPollingTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return nil
	}

	childCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/connect", nil)
	if err != nil {
		cancel()
		return err
	}
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		t.logger.Warn().Err(err).Str("url", t.baseURL).Msg("long-polling connect failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		cancel()
		t.logger.Warn().Str("status", resp.Status).Str("url", t.baseURL).Msg("long-polling connect rejected")
		return fmt.Errorf("failed to connect: %s", resp.Status)
	}

	var connectResp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&connectResp); err != nil {
		cancel()
		return err
	}

	t.ctx = childCtx
	t.cancelFunc = cancel
	t.sessionID = connectResp.SessionID
	t.open = true

	t.logger.Debug().Str("url", t.baseURL).Str("sessionId", t.sessionID).Msg("long-polling connected")

	go t.poll()

	return nil
}

func (t *LongPollingTransport) poll() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(t.pollInterval):
			msgs, err := t.fetchMessages()
			if err != nil {
				t.logger.Warn().Err(err).Msg("long-polling fetch failed")
				continue
			}

			for _, msg := range msgs {
				select {
				case t.incomingQueue <- msg:
				default:
					t.logger.Warn().Msg("long-polling queue full, dropping frame")
				}
			}
		}
	}
}

func (t *LongPollingTransport) fetchMessages() ([][]byte, error) {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID == "" {
		return nil, errors.New("not connected")
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/poll?sessionId=%s", t.baseURL, sessionID), nil)
	if err != nil {
		return nil, err
	}
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to poll: %s", resp.Status)
	}

	var messages []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, err
	}

	result := make([][]byte, len(messages))
	for i, msg := range messages {
		result[i] = []byte(msg)
	}

	return result, nil
}

func (t *LongPollingTransport) Send(data []byte) error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID == "" {
		return errors.New("not connected")
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/send?sessionId=%s", t.baseURL, sessionID),
		bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to send message: %s - %s", resp.Status, string(bodyBytes))
	}

	return nil
}

func (t *LongPollingTransport) Receive() ([]byte, error) {
	t.mu.Lock()
	open := t.open
	ctx := t.ctx
	t.mu.Unlock()

	if !open {
		return nil, errors.New("not connected")
	}

	select {
	case <-ctx.Done():
		return nil, errors.New("connection closed")
	case msg := <-t.incomingQueue:
		return msg, nil
	}
}

func (t *LongPollingTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.open
}

func (t *LongPollingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/disconnect?sessionId=%s", t.baseURL, t.sessionID), nil)
	if err == nil {
		t.applyHeaders(req)
		if resp, err := t.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}

	t.cancelFunc()
	t.open = false
	t.sessionID = ""

	return nil
}

func (t *LongPollingTransport) applyHeaders(req *http.Request) {
	for k, values := range t.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}
