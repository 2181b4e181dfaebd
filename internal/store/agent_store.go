package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/registry"
)

var _ registry.Registry = (*AgentStore)(nil)

const agentColumns = `id, name, description, model, system_prompt, status, created_at`

// AgentStore is a registry.Registry backed by the agents table. Row order is
// insertion order.
type AgentStore struct {
	db *DB
}

// NewAgentStore creates an agent store using the given database.
func NewAgentStore(db *DB) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Create(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	agent = registry.Prepare(agent)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Description, agent.Model, agent.SystemPrompt,
		string(agent.Status), agent.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("inserting agent %q: %w", agent.Name, err)
	}
	return agent, nil
}

func (s *AgentStore) FindByName(ctx context.Context, name string) (domain.Agent, bool, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE name = ? ORDER BY seq LIMIT 1`, name)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Agent{}, false, nil
	}
	if err != nil {
		return domain.Agent{}, false, fmt.Errorf("finding agent %q: %w", name, err)
	}
	return agent, true, nil
}

func (s *AgentStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM agents WHERE seq = (SELECT seq FROM agents WHERE name = ? ORDER BY seq LIMIT 1)`, name)
	if err != nil {
		return false, fmt.Errorf("deleting agent %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting agent %q: %w", name, err)
	}
	return n > 0, nil
}

func (s *AgentStore) List(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	agents := []domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (domain.Agent, error) {
	var (
		a         domain.Agent
		status    string
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Model, &a.SystemPrompt, &status, &createdAt); err != nil {
		return domain.Agent{}, err
	}
	a.Status = domain.AgentStatus(status)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	a.CreatedAt = t
	return a, nil
}
