package config

import "time"

// Config represents the complete Red Alert client configuration
type Config struct {
	Stream  Stream  `yaml:"stream"`
	Backend Backend `yaml:"backend"`
	Audio   Audio   `yaml:"audio"`
	API     API     `yaml:"api"`
	UI      UI      `yaml:"ui"`
	Log     Log     `yaml:"log"`
}

// Stream defines the STOMP-over-WebSocket alert stream
type Stream struct {
	URL               string        `yaml:"url"`
	Topic             string        `yaml:"topic"`
	Host              string        `yaml:"host,omitempty"`
	Login             string        `yaml:"login,omitempty"`
	PasscodeEnv       string        `yaml:"passcode_env,omitempty"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HeartbeatOutgoing time.Duration `yaml:"heartbeat_outgoing"`
	HeartbeatIncoming time.Duration `yaml:"heartbeat_incoming"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	TLS               TLS           `yaml:"tls,omitempty"`
}

// TLS holds client TLS settings for wss:// streams
type TLS struct {
	CAFile             string `yaml:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	ServerName         string `yaml:"server_name,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// Configured reports whether any TLS setting differs from the system defaults
func (t TLS) Configured() bool {
	return t != TLS{}
}

// Backend defines the REST collaborator
type Backend struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Audio defines the arrival cue
type Audio struct {
	Enabled   *bool         `yaml:"enabled,omitempty"`
	Frequency float64       `yaml:"frequency"`
	Duration  time.Duration `yaml:"duration"`
}

// API defines the local status server
type API struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// UI selects how alerts are presented
type UI struct {
	Mode string `yaml:"mode"` // "tui" or "headless"
}

// Log defines logging output
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// AudioEnabled reports whether the arrival cue should sound. Unset means enabled.
func (a Audio) AudioEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}
