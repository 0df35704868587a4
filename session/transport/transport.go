// Package transport provides the bidirectional connections a session
// runs over.
package transport

import (
	"context"
	"strings"
)

// DefaultEndpoint is used when no endpoint is configured.
const DefaultEndpoint = "ws://127.0.0.1:8080/socket"

// Transport is a single bidirectional connection.
type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
	IsOpen() bool
}

// Factory builds a transport for an endpoint. The session resolves its
// factory once at construction and never inspects the environment
// itself.
type Factory func(endpoint string) Transport

// DefaultFactory selects an implementation from the endpoint scheme:
// http/https endpoints get the long-polling transport, everything else
// the websocket transport.
func DefaultFactory(endpoint string) Transport {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return NewLongPolling(endpoint)
	}
	return NewWebSocket(endpoint)
}
