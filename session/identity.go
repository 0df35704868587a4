package session

import "sync"

// identity tracks the server-assigned client id and a single pending
// ready callback.
type identity struct {
	mu       sync.Mutex
	clientID string
	pending  func(string)
}

func (i *identity) ID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.clientID
}

// Ready invokes cb synchronously if the id is already known. Otherwise
// cb is stored until the server assigns one; only the most recent
// pending callback is retained.
func (i *identity) Ready(cb func(clientID string)) {
	i.mu.Lock()
	if i.clientID != "" {
		id := i.clientID
		i.mu.Unlock()
		cb(id)
		return
	}
	i.pending = cb
	i.mu.Unlock()
}

func (i *identity) resolve(clientID string) {
	i.mu.Lock()
	i.clientID = clientID
	pending := i.pending
	i.pending = nil
	i.mu.Unlock()

	if pending != nil {
		pending(clientID)
	}
}

// reset clears the id on disconnect. Any pending callback is dropped;
// a fresh Ready call is needed after reconnecting.
func (i *identity) reset() {
	i.mu.Lock()
	i.clientID = ""
	i.pending = nil
	i.mu.Unlock()
}
