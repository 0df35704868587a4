package session

import "sync"

// metadataStore holds the key/value pairs merged into every outbound
// frame.
type metadataStore struct {
	mu     sync.RWMutex
	values map[string]any
}

func newMetadataStore() *metadataStore {
	return &metadataStore{values: make(map[string]any)}
}

// Merge shallow-merges partial into the store; keys present in partial
// overwrite existing values.
func (m *metadataStore) Merge(partial map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range partial {
		m.values[k] = v
	}
}

// Snapshot returns an independent copy of the current map.
func (m *metadataStore) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}

	return out
}
