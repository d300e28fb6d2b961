package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pushsync/config.toml.
type Config struct {
	DefaultProfile string  `toml:"default_profile"`
	API            API     `toml:"api"`
	Stream         Stream  `toml:"stream"`
	Compose        Compose `toml:"compose"`
}

// API configures the HTTP collaborators (upload, send, refetch).
type API struct {
	BaseURL string `toml:"base_url"`
}

// Stream configures the push-stream client.
type Stream struct {
	URL                string `toml:"url"`
	Transport          string `toml:"transport"` // "sse" or "websocket"
	ReconnectDelaySecs int    `toml:"reconnect_delay_seconds"`
	PollIntervalSecs   int    `toml:"poll_interval_seconds"`
}

// Compose configures outbound message validation.
type Compose struct {
	MaxTextLength int `toml:"max_text_length"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Stream: Stream{
			Transport:          "sse",
			ReconnectDelaySecs: 7,
			PollIntervalSecs:   5,
		},
		Compose: Compose{
			MaxTextLength: 2000,
		},
	}
}

// ReconnectDelay returns the reconnect delay as a duration.
func (s Stream) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelaySecs) * time.Second
}

// PollInterval returns the polling fallback interval as a duration.
func (s Stream) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSecs) * time.Second
}

// Load reads config from the given path, layering it over Default.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
