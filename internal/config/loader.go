package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStreamURL      = "ws://localhost:8081/ws-red-alert/websocket"
	DefaultTopic          = "/topic/alerts"
	DefaultReconnectDelay = 5 * time.Second
	DefaultHeartbeat      = 4 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultBackendURL     = "http://localhost:8086/api/v1"
	DefaultBackendTimeout = 10 * time.Second
	DefaultToneFrequency  = 800
	DefaultToneDuration   = 500 * time.Millisecond
	DefaultAPIListen      = "127.0.0.1:8090"
	DefaultUIMode         = "tui"
	DefaultLogLevel       = "info"
)

// Environment overrides applied after the file is read
const (
	EnvStreamURL  = "REDALERT_STREAM_URL"
	EnvBackendURL = "REDALERT_BACKEND_URL"
	EnvAPIListen  = "REDALERT_API_LISTEN"
)

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvStreamURL); v != "" {
		cfg.Stream.URL = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvAPIListen); v != "" {
		cfg.API.Listen = v
	}
}

// ApplyDefaults fills every zero field with its default
func ApplyDefaults(cfg *Config) {
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = DefaultStreamURL
	}
	if cfg.Stream.Topic == "" {
		cfg.Stream.Topic = DefaultTopic
	}
	if cfg.Stream.ReconnectDelay == 0 {
		cfg.Stream.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Stream.HeartbeatOutgoing == 0 {
		cfg.Stream.HeartbeatOutgoing = DefaultHeartbeat
	}
	if cfg.Stream.HeartbeatIncoming == 0 {
		cfg.Stream.HeartbeatIncoming = DefaultHeartbeat
	}
	if cfg.Stream.ConnectTimeout == 0 {
		cfg.Stream.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Audio.Frequency == 0 {
		cfg.Audio.Frequency = DefaultToneFrequency
	}
	if cfg.Audio.Duration == 0 {
		cfg.Audio.Duration = DefaultToneDuration
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = DefaultAPIListen
	}
	if cfg.UI.Mode == "" {
		cfg.UI.Mode = DefaultUIMode
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.Stream.URL)
	if err != nil {
		return fmt.Errorf("stream.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.url must use ws:// or wss://, got %q", cfg.Stream.URL)
	}
	if cfg.Stream.Topic[0] != '/' {
		return fmt.Errorf("stream.topic must start with '/', got %q", cfg.Stream.Topic)
	}
	if cfg.Stream.ReconnectDelay < 0 {
		return fmt.Errorf("stream.reconnect_delay must be positive")
	}
	if cfg.Stream.ConnectTimeout < 0 {
		return fmt.Errorf("stream.connect_timeout must be positive")
	}
	if cfg.Stream.TLS.Configured() && u.Scheme != "wss" {
		return fmt.Errorf("stream.tls requires a wss:// url")
	}
	if (cfg.Stream.TLS.CertFile == "") != (cfg.Stream.TLS.KeyFile == "") {
		return fmt.Errorf("stream.tls.cert_file and key_file must be set together")
	}

	b, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url: %w", err)
	}
	if b.Scheme != "http" && b.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http:// or https://, got %q", cfg.Backend.BaseURL)
	}

	if cfg.Audio.Frequency < 0 || cfg.Audio.Duration < 0 {
		return fmt.Errorf("audio frequency and duration must be positive")
	}

	if cfg.UI.Mode != "tui" && cfg.UI.Mode != "headless" {
		return fmt.Errorf("ui.mode must be 'tui' or 'headless', got %q", cfg.UI.Mode)
	}

	return nil
}
