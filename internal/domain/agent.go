package domain

import "time"

// AgentStatus is the lifecycle status of a configured agent.
type AgentStatus string

const (
	AgentStatusIdle   AgentStatus = "idle"
	AgentStatusActive AgentStatus = "active"
	AgentStatusError  AgentStatus = "error"
)

// Agent is a named agent configuration defined through the coordinator.
// Names are not unique; ID only keys storage rows.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Model        string      `json:"model"`
	SystemPrompt string      `json:"systemPrompt,omitempty"`
	Status       AgentStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// SubAgentStatus is the status reported for a delegated task.
type SubAgentStatus string

const (
	SubAgentRunning   SubAgentStatus = "running"
	SubAgentCompleted SubAgentStatus = "completed"
	SubAgentFailed    SubAgentStatus = "failed"
)

// SubAgent is display-only state fed by the task delegation collaborator.
type SubAgent struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   SubAgentStatus `json:"status"`
	Progress string         `json:"progress,omitempty"`
}

// Valid reports whether s is one of the known subagent statuses.
func (s SubAgentStatus) Valid() bool {
	switch s {
	case SubAgentRunning, SubAgentCompleted, SubAgentFailed:
		return true
	}
	return false
}
