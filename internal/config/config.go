package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the chat service.
type Config struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	PublicDir  string `json:"public_dir" yaml:"public_dir"`

	LogFile  string `json:"log_file" yaml:"log_file"`
	LogLevel string `json:"log_level" yaml:"log_level"` // "debug", "info", "warn", "error"

	// Local user of the in-memory SDK; messages from it count as self.
	UserID string `json:"user_id" yaml:"user_id"`

	// Mark messages read when they arrive for the conversation being chatted in.
	AutoMarkRead bool `json:"auto_mark_read" yaml:"auto_mark_read"`
	// Stop routing an inbound batch after an auto-read message.
	AbortBatchOnRead bool `json:"abort_batch_on_read" yaml:"abort_batch_on_read"`

	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       "127.0.0.1:3000",
		PublicDir:        "./public",
		LogLevel:         "info",
		UserID:           "me",
		AutoMarkRead:     true,
		AbortBatchOnRead: false,
		MetricsEnabled:   true,
	}
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.ListenAddr == "", "listen address is empty"},
		{strings.TrimSpace(c.UserID) == "", "user id is empty; no inbound message will count as self"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log level %q, using info", c.LogLevel))
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML/JSON file over the defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
