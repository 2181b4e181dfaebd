package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	defaultPort            = 18790
	defaultReplyDelayMs    = 600
	defaultAcknowledgement = "Message received. Agent coordination is not connected to a backend yet; " +
		"use /agents to create, list, or delete agents."
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// ReplyDelay returns the configured simulated reply delay.
func (d DialogConfig) ReplyDelay() time.Duration {
	return time.Duration(d.ReplyDelayMs) * time.Millisecond
}
