// Package command recognises the /agents command namespace in a chat turn.
package command

// Usage lines returned when a command is malformed.
const (
	NewUsage    = `Usage: /agents new <name> [--description "..."] [--model "..."] [--prompt "..."]`
	DeleteUsage = `Usage: /agents delete <name>`
)

// Command is a recognised /agents command. The concrete types below are the
// only implementations.
type Command interface {
	command()
}

// StartWizard opens the guided agent wizard.
type StartWizard struct{}

// CreateAgent creates an agent from a single inline command.
type CreateAgent struct {
	Name         string
	Description  string
	Model        string
	SystemPrompt string
}

// ListAgents lists the registry.
type ListAgents struct{}

// DeleteAgent removes the first agent whose name matches exactly.
type DeleteAgent struct {
	Name string
}

// Help is returned for an empty or unknown sub-command.
type Help struct{}

// Usage reports a malformed command. Message is shown to the user verbatim.
type Usage struct {
	Message string
}

func (StartWizard) command() {}
func (CreateAgent) command() {}
func (ListAgents) command()  {}
func (DeleteAgent) command() {}
func (Help) command()        {}
func (Usage) command()       {}
