package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the hub configuration.
const (
	DefaultPort         = 8080
	DefaultSendBuffer   = 16
	DefaultPongWait     = 60 * time.Second
	DefaultPingInterval = (DefaultPongWait * 9) / 10
)

// Config holds the hub-side configuration parsed from the `hub:` section of
// the config file.
type Config struct {
	Hub HubConfig `yaml:"hub"`
}

// HubConfig holds all hub settings.
type HubConfig struct {
	// Port is the TCP port the hub listens on (default 8080).
	Port int `yaml:"port"`

	// Password is the shared secret every upgrade request must present in
	// its authorization header. Required.
	Password string `yaml:"password"`

	// SendBuffer is the per-connection outgoing message buffer depth
	// (default 16).
	SendBuffer int `yaml:"send_buffer"`

	// PingInterval controls how often the hub sends WebSocket ping frames.
	// Must be less than PongWait. Default 54s.
	PingInterval time.Duration `yaml:"ping_interval"`

	// PongWait is how long to wait for a pong response before treating the
	// connection as dead. Default 60s.
	PongWait time.Duration `yaml:"pong_wait"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hub config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("hub config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("hub config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Hub: HubConfig{
			Port:         DefaultPort,
			SendBuffer:   DefaultSendBuffer,
			PingInterval: DefaultPingInterval,
			PongWait:     DefaultPongWait,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Hub.Port <= 0 || cfg.Hub.Port > 65535 {
		return fmt.Errorf("hub.port %d is out of range [1, 65535]", cfg.Hub.Port)
	}
	if cfg.Hub.Password == "" {
		return fmt.Errorf("hub.password must not be empty")
	}
	if cfg.Hub.SendBuffer <= 0 {
		return fmt.Errorf("hub.send_buffer must be positive")
	}
	if cfg.Hub.PingInterval <= 0 || cfg.Hub.PongWait <= 0 {
		return fmt.Errorf("hub.ping_interval and hub.pong_wait must be positive")
	}
	if cfg.Hub.PingInterval >= cfg.Hub.PongWait {
		return fmt.Errorf("hub.ping_interval %s must be less than hub.pong_wait %s",
			cfg.Hub.PingInterval, cfg.Hub.PongWait)
	}
	return nil
}
