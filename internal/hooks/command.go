package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/arbiter/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHook runs a shell command with the JSON payload on stdin.
type CommandHook struct {
	Command string
	Timeout time.Duration
}

// OnCommand registers a shell command for event. The handler name is the
// command line itself, so Off(event, command) removes it.
func (m *Manager) OnCommand(event string, hook CommandHook) {
	m.On(event, hook.Command, hook.handler())
}

func (h CommandHook) handler() Handler {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
		cmd.Stdin = bytes.NewReader(body)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", h.Command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", h.Command, err)
		}
		return nil
	}
}

// configEvents maps hook config keys to event names.
var configEvents = map[string]string{
	"agentCreated":     EventAgentCreated,
	"agentDeleted":     EventAgentDeleted,
	"wizardCompleted":  EventWizardCompleted,
	"subagentsUpdated": EventSubAgentsUpdated,
	"gatewayStart":     EventGatewayStart,
	"gatewayStop":      EventGatewayStop,
}

// RegisterConfig installs every command hook from cfg and returns how many
// were registered.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	n := 0
	for key, entries := range cfg.ByEvent() {
		event, ok := configEvents[key]
		if !ok {
			continue
		}
		for _, e := range entries {
			if e.Command == "" {
				continue
			}
			m.OnCommand(event, CommandHook{
				Command: e.Command,
				Timeout: time.Duration(e.Timeout) * time.Millisecond,
			})
			n++
		}
	}
	if n > 0 {
		m.log.Info().Int("count", n).Msg("command hooks registered")
	}
	return n
}
