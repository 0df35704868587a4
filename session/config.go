package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Randa-Software/libranda-client/session/transport"
)

// Config is the file-loadable subset of the session options.
type Config struct {
	Endpoint             string
	AutoReconnect        bool
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	Transport            string
}

func DefaultConfig() Config {
	return Config{
		Endpoint:          transport.DefaultEndpoint,
		AutoReconnect:     true,
		ReconnectInterval: DefaultReconnectInterval,
	}
}

type fileConfig struct {
	Endpoint             string `toml:"endpoint"`
	AutoReconnect        bool   `toml:"auto_reconnect"`
	ReconnectInterval    string `toml:"reconnect_interval"`
	ReconnectIntervalMS  int64  `toml:"reconnect_interval_ms"`
	MaxReconnectInterval string `toml:"max_reconnect_interval"`
	Transport            string `toml:"transport"`
}

// LoadConfig reads a TOML file and overlays it on the defaults. Keys
// absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load session config: %w", err)
	}

	if meta.IsDefined("endpoint") {
		if endpoint := strings.TrimSpace(raw.Endpoint); endpoint != "" {
			cfg.Endpoint = endpoint
		}
	}

	if meta.IsDefined("auto_reconnect") {
		cfg.AutoReconnect = raw.AutoReconnect
	}

	if meta.IsDefined("reconnect_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReconnectInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse reconnect_interval: %w", err)
		}
		cfg.ReconnectInterval = d
	}

	if meta.IsDefined("reconnect_interval_ms") {
		cfg.ReconnectInterval = time.Duration(raw.ReconnectIntervalMS) * time.Millisecond
	}

	if meta.IsDefined("max_reconnect_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxReconnectInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse max_reconnect_interval: %w", err)
		}
		cfg.MaxReconnectInterval = d
	}

	if meta.IsDefined("transport") {
		t := strings.ToLower(strings.TrimSpace(raw.Transport))
		switch t {
		case "", "websocket", "longpolling":
			cfg.Transport = t
		default:
			return Config{}, fmt.Errorf("unknown transport %q", raw.Transport)
		}
	}

	return cfg, nil
}

// Options expands the config into session options.
func (c Config) Options() []Option {
	opts := []Option{
		WithAutoReconnect(c.AutoReconnect),
	}

	if c.ReconnectInterval > 0 {
		opts = append(opts, WithReconnectInterval(c.ReconnectInterval))
	}
	if c.MaxReconnectInterval > 0 {
		opts = append(opts, WithMaxReconnectInterval(c.MaxReconnectInterval))
	}

	switch c.Transport {
	case "websocket":
		opts = append(opts, WithTransportFactory(func(endpoint string) transport.Transport {
			return transport.NewWebSocket(endpoint)
		}))
	case "longpolling":
		opts = append(opts, WithTransportFactory(func(endpoint string) transport.Transport {
			return transport.NewLongPolling(endpoint)
		}))
	}

	return opts
}

// NewFromConfig builds a session from a loaded config; opts override
// the config.
func NewFromConfig(cfg Config, opts ...Option) *Session {
	all := append(cfg.Options(), opts...)
	return New(cfg.Endpoint, all...)
}
