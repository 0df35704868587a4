package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Randa-Software/libranda-client/session/transport"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, transport.DefaultEndpoint, cfg.Endpoint)
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Empty(t, cfg.Transport)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
endpoint = "wss://example.com/socket"
auto_reconnect = false
reconnect_interval = "2s"
max_reconnect_interval = "30s"
transport = "websocket"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://example.com/socket", cfg.Endpoint)
	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, 2*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectInterval)
	assert.Equal(t, "websocket", cfg.Transport)
}

func TestLoadConfigIntervalMillis(t *testing.T) {
	path := writeConfig(t, `reconnect_interval_ms = 1500`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReconnectInterval)
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `transport = "carrier-pigeon"`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `reconnect_interval = "soon"`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = "ws://example.invalid/socket"
	cfg.AutoReconnect = false

	s := NewFromConfig(cfg)
	t.Cleanup(func() { _ = s.Disconnect() })

	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.IsConnected())
}
