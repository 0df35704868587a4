package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pollServer implements the long-polling protocol and echoes every
// sent frame back through the poll queue.
type pollServer struct {
	mu    sync.Mutex
	queue []json.RawMessage
}

func (p *pollServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "test-session"})
	})

	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionId") != "test-session" {
			http.Error(w, "unknown session", http.StatusBadRequest)
			return
		}

		p.mu.Lock()
		pending := p.queue
		p.queue = nil
		p.mu.Unlock()

		if pending == nil {
			pending = []json.RawMessage{}
		}
		_ = json.NewEncoder(w).Encode(pending)
	})

	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		p.mu.Lock()
		p.queue = append(p.queue, json.RawMessage(body))
		p.mu.Unlock()
	})

	mux.HandleFunc("/disconnect", func(w http.ResponseWriter, r *http.Request) {})

	return mux
}

func TestLongPollingRoundTrip(t *testing.T) {
	srv := httptest.NewServer((&pollServer{}).handler())
	t.Cleanup(srv.Close)

	tr := NewLongPolling(srv.URL, WithPollInterval(10*time.Millisecond))

	require.NoError(t, tr.Connect(context.Background()))
	assert.True(t, tr.IsOpen())

	frame := []byte(`{"namespace":"chat","event":"message","data":"hi"}`)
	require.NoError(t, tr.Send(frame))

	got, err := tr.Receive()
	require.NoError(t, err)
	assert.JSONEq(t, string(frame), string(got))

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsOpen())
}

func TestLongPollingFetchFailureLogged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "test-session"})
	})
	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	buf := &logBuffer{}
	tr := NewLongPolling(srv.URL,
		WithPollInterval(5*time.Millisecond),
		WithLongPollingLogger(zerolog.New(buf)))

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { _ = tr.Close() })

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "long-polling fetch failed")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, buf.String(), "long-polling fetch failed")
}

func TestLongPollingConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	tr := NewLongPolling(srv.URL)
	assert.Error(t, tr.Connect(context.Background()))
	assert.False(t, tr.IsOpen())
}

func TestLongPollingSendWhenClosed(t *testing.T) {
	tr := NewLongPolling("http://example.invalid")

	assert.Error(t, tr.Send([]byte("x")))

	_, err := tr.Receive()
	assert.Error(t, err)
}

func TestLongPollingReceiveAfterClose(t *testing.T) {
	srv := httptest.NewServer((&pollServer{}).handler())
	t.Cleanup(srv.Close)

	tr := NewLongPolling(srv.URL, WithPollInterval(10*time.Millisecond))
	require.NoError(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())

	done := make(chan error, 1)
	go func() {
		_, err := tr.Receive()
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after close")
	}
}
