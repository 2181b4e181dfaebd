package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	issues = appendEnumIssue(issues, "gateway.mode", cfg.Gateway.Mode, []string{"local", "remote"})
	issues = appendEnumIssue(issues, "gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	issues = appendEnumIssue(issues, "gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Logging validation
	issues = appendEnumIssue(issues, "logging.level", cfg.Logging.Level,
		[]string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	issues = appendEnumIssue(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle,
		[]string{"pretty", "compact", "json"})

	// Dialog validation
	if cfg.Dialog.ReplyDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "dialog.replyDelayMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Dialog.ReplyDelayMs),
		})
	}
	seen := make(map[string]bool, len(cfg.Dialog.Models))
	for i, m := range cfg.Dialog.Models {
		path := fmt.Sprintf("dialog.models[%d]", i)
		if m.Label == "" || m.ID == "" {
			issues = append(issues, ValidationIssue{Path: path, Message: "label and id are required"})
			continue
		}
		if seen[m.Label] {
			issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf("duplicate label %q", m.Label)})
		}
		seen[m.Label] = true
	}

	// Registry validation
	issues = appendEnumIssue(issues, "registry.store", cfg.Registry.Store, []string{"memory", "sqlite"})

	// IRC validation (only if configured)
	if cfg.Channels.IRC != nil {
		irc := cfg.Channels.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	// Hooks validation
	for event, entries := range cfg.Hooks.ByEvent() {
		for i, h := range entries {
			if h.Command == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("hooks.%s[%d].command", event, i),
					Message: "command is required",
				})
			}
		}
	}

	return issues
}

func appendEnumIssue(issues []ValidationIssue, path, value string, valid []string) []ValidationIssue {
	if value == "" || slices.Contains(valid, value) {
		return issues
	}
	return append(issues, ValidationIssue{
		Path:    path,
		Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
	})
}

// ByEvent returns the configured hook entries keyed by their config name.
func (h HooksConfig) ByEvent() map[string][]HookEntry {
	return map[string][]HookEntry{
		"agentCreated":     h.AgentCreated,
		"agentDeleted":     h.AgentDeleted,
		"wizardCompleted":  h.WizardCompleted,
		"subagentsUpdated": h.SubAgentsUpdated,
		"gatewayStart":     h.GatewayStart,
		"gatewayStop":      h.GatewayStop,
	}
}
