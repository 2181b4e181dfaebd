// Package wizard implements the guided, multi-turn agent creation dialog.
//
// Each step is its own type carrying only the fields collected so far, so a
// draft can never be in a step it has not earned. A nil State means no
// wizard is running.
package wizard

import (
	"fmt"

	"github.com/soyeahso/arbiter/internal/catalog"
	"github.com/soyeahso/arbiter/internal/domain"
)

// Skip is the literal answer that leaves an optional field empty.
const Skip = "skip"

// Step names the field the next answer supplies.
type Step string

const (
	StepName         Step = "name"
	StepDescription  Step = "description"
	StepModel        Step = "model"
	StepSystemPrompt Step = "systemPrompt"
)

// State is one step of a running wizard. The four Awaiting types are its
// only implementations.
type State interface {
	Step() Step
	sealed()
}

// AwaitingName is the first step.
type AwaitingName struct{}

// AwaitingDescription has a name.
type AwaitingDescription struct {
	Name string
}

// AwaitingModel has a name and description.
type AwaitingModel struct {
	Name        string
	Description string
}

// AwaitingSystemPrompt has everything but the system prompt.
type AwaitingSystemPrompt struct {
	Name        string
	Description string
	Model       string
}

func (AwaitingName) Step() Step         { return StepName }
func (AwaitingDescription) Step() Step  { return StepDescription }
func (AwaitingModel) Step() Step        { return StepModel }
func (AwaitingSystemPrompt) Step() Step { return StepSystemPrompt }

func (AwaitingName) sealed()         {}
func (AwaitingDescription) sealed()  {}
func (AwaitingModel) sealed()        {}
func (AwaitingSystemPrompt) sealed() {}

// Reply is a coordinator prompt, optionally with quick-reply options.
type Reply struct {
	Content string
	Options []string
}

// Outcome is the result of feeding one answer to the wizard. Agent is set
// only on the final step, when Next is nil.
type Outcome struct {
	Next  State
	Reply Reply
	Agent *domain.Agent
}

// Start opens a wizard at the name step.
func Start() (State, Reply) {
	s := AwaitingName{}
	return s, Prompt(s, nil)
}

// Prompt returns the question asked for state. cat is only consulted at the
// model step; a nil catalog means the built-in one.
func Prompt(state State, cat *catalog.Catalog) Reply {
	switch s := state.(type) {
	case AwaitingName:
		return Reply{Content: "Let's create a new agent. What should we name this agent?"}
	case AwaitingDescription:
		return Reply{Content: fmt.Sprintf("Describe what %q should do (or type %q to leave it empty).", s.Name, Skip)}
	case AwaitingModel:
		if cat == nil {
			cat = catalog.Default()
		}
		return Reply{
			Content: "Which model should it use? Pick one or type a model identifier.",
			Options: cat.Labels(),
		}
	case AwaitingSystemPrompt:
		return Reply{Content: fmt.Sprintf("Enter a system prompt for the agent (or type %q to leave it empty).", Skip)}
	default:
		return Reply{}
	}
}

// Advance applies one answer to state. The answer is taken verbatim; at the
// model step a catalog label is resolved to its identifier and anything else
// is kept as typed. A nil state yields an empty Outcome.
func Advance(state State, input string, cat *catalog.Catalog) Outcome {
	if cat == nil {
		cat = catalog.Default()
	}

	var next State
	switch s := state.(type) {
	case AwaitingName:
		next = AwaitingDescription{Name: input}
	case AwaitingDescription:
		next = AwaitingModel{Name: s.Name, Description: optional(input)}
	case AwaitingModel:
		next = AwaitingSystemPrompt{Name: s.Name, Description: s.Description, Model: cat.Resolve(input)}
	case AwaitingSystemPrompt:
		agent := &domain.Agent{
			Name:         s.Name,
			Description:  s.Description,
			Model:        s.Model,
			SystemPrompt: optional(input),
			Status:       domain.AgentStatusIdle,
		}
		return Outcome{
			Reply: Reply{Content: fmt.Sprintf("Agent %q created with model %s.", agent.Name, agent.Model)},
			Agent: agent,
		}
	default:
		return Outcome{}
	}
	return Outcome{Next: next, Reply: Prompt(next, cat)}
}

func optional(input string) string {
	if input == Skip {
		return ""
	}
	return input
}

// Draft is the partially filled agent shown to UIs.
type Draft struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt"`
}

// Status is the wire shape of the wizard: Step is nil exactly when Active is
// false.
type Status struct {
	Active bool  `json:"active"`
	Step   *Step `json:"step"`
	Data   Draft `json:"data"`
}

// Snapshot renders state for display.
func Snapshot(state State) Status {
	var d Draft
	switch s := state.(type) {
	case AwaitingName:
	case AwaitingDescription:
		d.Name = s.Name
	case AwaitingModel:
		d.Name, d.Description = s.Name, s.Description
	case AwaitingSystemPrompt:
		d.Name, d.Description, d.Model = s.Name, s.Description, s.Model
	default:
		return Status{}
	}
	step := state.Step()
	return Status{Active: true, Step: &step, Data: d}
}
