package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataShallowMerge(t *testing.T) {
	m := newMetadataStore()

	m.Merge(map[string]any{"a": 1})
	m.Merge(map[string]any{"b": 2})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, m.Snapshot())

	m.Merge(map[string]any{"a": 3})
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, m.Snapshot())
}

func TestMetadataSnapshotIsIndependent(t *testing.T) {
	m := newMetadataStore()
	m.Merge(map[string]any{"a": 1})

	snap := m.Snapshot()
	snap["a"] = 99
	snap["extra"] = true

	assert.Equal(t, map[string]any{"a": 1}, m.Snapshot())
}

func TestMetadataMergeDoesNotRetainInput(t *testing.T) {
	m := newMetadataStore()

	partial := map[string]any{"a": 1}
	m.Merge(partial)
	partial["a"] = 2

	assert.Equal(t, map[string]any{"a": 1}, m.Snapshot())
}
