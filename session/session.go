// Package session implements a client-side session over a single
// bidirectional connection: connection lifecycle with automatic
// reconnection, namespaced event dispatch, a server-assigned identity
// handshake, outbound metadata, and a plugin mechanism.
package session

import (
	"errors"
)

// Frame is one message exchanged over the transport.
type Frame struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
}

// Handler receives the data payload of a dispatched frame.
type Handler func(data any)

// State of the session connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SystemNamespace is reserved for lifecycle and handshake events.
const SystemNamespace = "system"

const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventInit         = "init"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrInvalidFrame = errors.New("invalid frame format")
	ErrPluginID     = errors.New("plugin id required")
	ErrPluginExists = errors.New("plugin already registered")
)
