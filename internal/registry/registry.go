// Package registry stores agent configurations created through the dialog.
package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/arbiter/internal/domain"
)

// Registry is an ordered collection of agents addressed by name. Names are
// not unique: lookups and deletes act on the earliest match.
type Registry interface {
	// Create appends agent and returns it with ID and CreatedAt filled in.
	Create(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	FindByName(ctx context.Context, name string) (domain.Agent, bool, error)
	// DeleteByName removes the first exact match and reports whether one existed.
	DeleteByName(ctx context.Context, name string) (bool, error)
	// List returns agents in insertion order.
	List(ctx context.Context) ([]domain.Agent, error)
}

// Prepare fills in the storage fields of a new agent.
func Prepare(agent domain.Agent) domain.Agent {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	if agent.Status == "" {
		agent.Status = domain.AgentStatusIdle
	}
	return agent
}

// Memory is a slice-backed Registry.
type Memory struct {
	mu     sync.RWMutex
	agents []domain.Agent
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Create(_ context.Context, agent domain.Agent) (domain.Agent, error) {
	agent = Prepare(agent)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = append(m.agents, agent)
	return agent, nil
}

func (m *Memory) FindByName(_ context.Context, name string) (domain.Agent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.index(name)
	if i < 0 {
		return domain.Agent{}, false, nil
	}
	return m.agents[i], true, nil
}

func (m *Memory) DeleteByName(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(name)
	if i < 0 {
		return false, nil
	}
	m.agents = slices.Delete(m.agents, i, i+1)
	return true, nil
}

func (m *Memory) List(_ context.Context) ([]domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.agents), nil
}

func (m *Memory) index(name string) int {
	return slices.IndexFunc(m.agents, func(a domain.Agent) bool { return a.Name == name })
}
