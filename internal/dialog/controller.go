// Package dialog routes chat turns to the agent wizard, the /agents commands,
// or the default coordinator reply.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/arbiter/internal/catalog"
	"github.com/soyeahso/arbiter/internal/command"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/hooks"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/registry"
	"github.com/soyeahso/arbiter/internal/transcript"
	"github.com/soyeahso/arbiter/internal/wizard"
)

// ErrInvalidSubAgent rejects a subagent snapshot with an unknown status.
var ErrInvalidSubAgent = errors.New("dialog: invalid subagent")

// Coordinator message texts.
const (
	HelpText = "Available commands:\n" +
		"/agents new - create an agent step by step\n" +
		`/agents new <name> [--description "..."] [--model "..."] [--prompt "..."] - create an agent in one line` + "\n" +
		"/agents list - list configured agents\n" +
		"/agents delete <name> - delete an agent"
	NoAgentsText        = "No agents configured."
	fallbackAcknowledge = "Message received."
)

// Settings are the tunables that may change while the controller runs.
type Settings struct {
	Catalog         *catalog.Catalog
	ReplyDelay      time.Duration
	Acknowledgement string
}

// Turn is the synchronous result of one submitted turn.
type Turn struct {
	// Messages holds the user message followed by any coordinator messages
	// produced before Submit returned.
	Messages []domain.Message
	// Pending is set when a coordinator reply was scheduled for later.
	Pending *Pending
}

// Controller is the single entry point for UI collaborators. All state it
// owns is only touched on its scheduler's executor.
type Controller struct {
	sched      *Scheduler
	registry   registry.Registry
	transcript *transcript.Transcript
	hooks      *hooks.Manager
	log        *logging.Logger

	// executor-owned
	wizard  wizard.State
	catalog *catalog.Catalog
	parser  *command.Parser
	delay   time.Duration
	ack     string

	subMu     sync.RWMutex
	subAgents []domain.SubAgent
}

// NewController creates a controller whose turns run on sched. A nil hook
// manager disables hooks.
func NewController(sched *Scheduler, reg registry.Registry, hm *hooks.Manager, settings Settings, log *logging.Logger) *Controller {
	log = log.Sub("dialog")
	if hm == nil {
		hm = hooks.NewManager(log)
	}
	c := &Controller{
		sched:      sched,
		registry:   reg,
		transcript: transcript.New(),
		hooks:      hm,
		log:        log,
	}
	c.apply(settings)
	return c
}

// Transcript returns the conversation log.
func (c *Controller) Transcript() *transcript.Transcript { return c.transcript }

// Submit processes one user turn.
func (c *Controller) Submit(ctx context.Context, text string) (*Turn, error) {
	var turn *Turn
	if err := c.sched.Do(ctx, func() { turn = c.handle(ctx, text) }); err != nil {
		return nil, err
	}
	return turn, nil
}

// SelectOption processes a quick-reply choice exactly like a typed turn.
func (c *Controller) SelectOption(ctx context.Context, option string) (*Turn, error) {
	return c.Submit(ctx, option)
}

// NewAgentShortcut opens the wizard without a user turn, as a create button
// would, and schedules the name prompt as a delayed coordinator message. If a
// wizard is already running, the prompt for its current step is scheduled
// instead. A prompt whose step was answered before it came due is dropped and
// its Pending resolves with ErrSuperseded.
func (c *Controller) NewAgentShortcut(ctx context.Context) (*Pending, error) {
	var p *Pending
	err := c.sched.Do(ctx, func() {
		if c.wizard == nil {
			c.wizard, _ = wizard.Start()
			c.emit(ctx, hooks.EventWizardStarted, map[string]any{"source": "shortcut"})
		}
		awaiting := c.wizard
		p = c.sched.AfterIf(c.delay, func() (domain.Message, bool) {
			if c.wizard != awaiting {
				c.log.Debug().Str("step", string(awaiting.Step())).Msg("shortcut prompt superseded")
				return domain.Message{}, false
			}
			reply := wizard.Prompt(c.wizard, c.catalog)
			return c.transcript.Append(domain.RoleCoordinator, reply.Content, reply.Options...), true
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Wizard returns a snapshot of the wizard state.
func (c *Controller) Wizard(ctx context.Context) (wizard.Status, error) {
	var st wizard.Status
	err := c.sched.Do(ctx, func() { st = wizard.Snapshot(c.wizard) })
	return st, err
}

// Agents lists the registry in insertion order.
func (c *Controller) Agents(ctx context.Context) ([]domain.Agent, error) {
	var (
		agents  []domain.Agent
		listErr error
	)
	if err := c.sched.Do(ctx, func() { agents, listErr = c.registry.List(ctx) }); err != nil {
		return nil, err
	}
	return agents, listErr
}

// UpdateSubAgents replaces the subagent snapshot supplied by the delegation
// collaborator.
func (c *Controller) UpdateSubAgents(ctx context.Context, subAgents []domain.SubAgent) error {
	for _, sa := range subAgents {
		if !sa.Status.Valid() {
			return fmt.Errorf("%w: subagent %q has status %q", ErrInvalidSubAgent, sa.ID, sa.Status)
		}
	}
	snapshot := slices.Clone(subAgents)
	return c.sched.Do(ctx, func() {
		c.subMu.Lock()
		c.subAgents = snapshot
		c.subMu.Unlock()
		c.emit(ctx, hooks.EventSubAgentsUpdated, map[string]any{"count": len(snapshot)})
	})
}

// SubAgents returns the latest subagent snapshot.
func (c *Controller) SubAgents() []domain.SubAgent {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return slices.Clone(c.subAgents)
}

// PendingReplies returns how many delayed coordinator messages are waiting.
func (c *Controller) PendingReplies() int { return c.sched.Outstanding() }

// Reconfigure swaps in new settings. A running wizard keeps its progress.
func (c *Controller) Reconfigure(ctx context.Context, settings Settings) error {
	return c.sched.Do(ctx, func() {
		c.apply(settings)
		c.log.Info().Dur("replyDelay", c.delay).Int("models", len(c.catalog.Labels())).Msg("dialog reconfigured")
	})
}

func (c *Controller) apply(s Settings) {
	c.catalog = s.Catalog
	if c.catalog == nil {
		c.catalog = catalog.Default()
	}
	c.parser = command.NewParser(c.catalog.DefaultModel())
	c.delay = max(s.ReplyDelay, 0)
	c.ack = s.Acknowledgement
	if c.ack == "" {
		c.ack = fallbackAcknowledge
	}
}

// handle runs on the executor.
func (c *Controller) handle(ctx context.Context, text string) *Turn {
	turn := &Turn{Messages: []domain.Message{c.transcript.Append(domain.RoleUser, text)}}
	c.emit(ctx, hooks.EventTurnReceived, map[string]any{"text": text, "wizard": c.wizard != nil})

	if c.wizard != nil {
		c.advanceWizard(ctx, turn, text)
		return turn
	}

	if cmd := c.parser.Parse(text); cmd != nil {
		c.execute(ctx, turn, cmd)
		return turn
	}

	ack := c.ack
	turn.Pending = c.sched.After(c.delay, func() domain.Message {
		return c.transcript.Append(domain.RoleCoordinator, ack)
	})
	return turn
}

func (c *Controller) advanceWizard(ctx context.Context, turn *Turn, text string) {
	out := wizard.Advance(c.wizard, text, c.catalog)
	c.wizard = out.Next

	if out.Agent == nil {
		c.say(turn, out.Reply.Content, out.Reply.Options...)
		return
	}

	created, reused, err := c.register(ctx, *out.Agent)
	if err != nil {
		c.log.Error().Err(err).Str("agent", out.Agent.Name).Msg("wizard could not create agent")
		c.say(turn, fmt.Sprintf("Could not create agent %q: %v", out.Agent.Name, err))
		return
	}
	c.log.Info().Str("agent", created.Name).Str("model", created.Model).Msg("agent created by wizard")
	c.say(turn, out.Reply.Content)
	data := agentData(created, "wizard", reused)
	c.emit(ctx, hooks.EventAgentCreated, data)
	c.emit(ctx, hooks.EventWizardCompleted, data)
}

func (c *Controller) execute(ctx context.Context, turn *Turn, cmd command.Command) {
	switch cmd := cmd.(type) {
	case command.StartWizard:
		var reply wizard.Reply
		c.wizard, reply = wizard.Start()
		c.say(turn, reply.Content, reply.Options...)
		c.emit(ctx, hooks.EventWizardStarted, map[string]any{"source": "command"})

	case command.CreateAgent:
		created, reused, err := c.register(ctx, domain.Agent{
			Name:         cmd.Name,
			Description:  cmd.Description,
			Model:        cmd.Model,
			SystemPrompt: cmd.SystemPrompt,
			Status:       domain.AgentStatusIdle,
		})
		if err != nil {
			c.log.Error().Err(err).Str("agent", cmd.Name).Msg("inline create failed")
			c.say(turn, fmt.Sprintf("Could not create agent %q: %v", cmd.Name, err))
			return
		}
		c.log.Info().Str("agent", created.Name).Str("model", created.Model).Msg("agent created inline")
		c.say(turn, fmt.Sprintf("Agent %q created with model %s.", created.Name, created.Model))
		c.emit(ctx, hooks.EventAgentCreated, agentData(created, "command", reused))

	case command.ListAgents:
		agents, err := c.registry.List(ctx)
		if err != nil {
			c.log.Error().Err(err).Msg("listing agents failed")
			c.say(turn, fmt.Sprintf("Could not list agents: %v", err))
			return
		}
		c.say(turn, FormatAgents(agents))

	case command.DeleteAgent:
		ok, err := c.registry.DeleteByName(ctx, cmd.Name)
		switch {
		case err != nil:
			c.log.Error().Err(err).Str("agent", cmd.Name).Msg("delete failed")
			c.say(turn, fmt.Sprintf("Could not delete agent %q: %v", cmd.Name, err))
		case ok:
			c.say(turn, fmt.Sprintf("Agent %q deleted.", cmd.Name))
			c.emit(ctx, hooks.EventAgentDeleted, map[string]any{"name": cmd.Name})
		default:
			c.say(turn, fmt.Sprintf("Agent %q not found.", cmd.Name))
		}

	case command.Usage:
		c.say(turn, cmd.Message)

	case command.Help:
		c.say(turn, HelpText)

	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", cmd)).Msg("unhandled command")
		c.say(turn, HelpText)
	}
}

// register stores a new agent and reports whether its name was already in
// use. Names are not unique, but lookup and deletion only ever reach the
// oldest agent with a given name, so reuse is logged.
func (c *Controller) register(ctx context.Context, a domain.Agent) (domain.Agent, bool, error) {
	_, reused, err := c.registry.FindByName(ctx, a.Name)
	if err != nil {
		return domain.Agent{}, false, err
	}
	created, err := c.registry.Create(ctx, a)
	if err != nil {
		return domain.Agent{}, false, err
	}
	if reused {
		c.log.Warn().Str("agent", a.Name).Msg("agent name already in use, delete will remove the older one first")
	}
	return created, reused, nil
}

// FormatAgents renders a 1-indexed agent listing.
func FormatAgents(agents []domain.Agent) string {
	if len(agents) == 0 {
		return NoAgentsText
	}
	lines := make([]string, len(agents))
	for i, a := range agents {
		lines[i] = fmt.Sprintf("%d. %s (%s)", i+1, a.Name, a.Status)
	}
	return strings.Join(lines, "\n")
}

func (c *Controller) say(turn *Turn, content string, options ...string) {
	turn.Messages = append(turn.Messages, c.transcript.Append(domain.RoleCoordinator, content, options...))
}

// emit fires hooks without holding up the executor.
func (c *Controller) emit(ctx context.Context, event string, data map[string]any) {
	c.hooks.EmitAsync(context.WithoutCancel(ctx), event, data)
}

func agentData(a domain.Agent, source string, reusedName bool) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"model":      a.Model,
		"source":     source,
		"reusedName": reusedName,
	}
}
