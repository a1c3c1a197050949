package store

import (
	"context"
	"database/sql"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/identity"
)

// RegisterAgent records an agent and its reporting parent. Re-registering
// replaces the parent edge.
func (s *Store) RegisterAgent(ctx context.Context, id identity.AgentID, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO agents (id, parent_id, tier) VALUES (?, ?, ?)",
		id.String(), parentID, int(id.Tier()))
	if err != nil {
		return errors.Wrapf(err, "register agent %s", id)
	}
	return nil
}

// ParentOf returns the registered parent of the agent, or ErrAgentNotFound
// when the agent is unknown or has no parent recorded.
func (s *Store) ParentOf(ctx context.Context, agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent string
	err := s.db.QueryRowContext(ctx,
		"SELECT parent_id FROM agents WHERE id = ?", agentID).Scan(&parent)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(errors.ErrAgentNotFound, "agent %s", agentID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "look up parent of %s", agentID)
	}
	if parent == "" {
		return "", errors.Wrapf(errors.ErrAgentNotFound, "agent %s has no parent", agentID)
	}
	return parent, nil
}

// AgentsInTier lists registered agent ids in the given tier.
func (s *Store) AgentsInTier(ctx context.Context, tier identity.Tier) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM agents WHERE tier = ? ORDER BY id", int(tier))
	if err != nil {
		return nil, errors.Wrapf(err, "list tier %d agents", tier)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan agent row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
