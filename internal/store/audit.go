package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
)

// AuditEntry is one recorded guard decision.
type AuditEntry struct {
	ID          int64
	AgentID     string
	Action      string
	Verdict     string
	Severity    string
	Explanation string
	Citations   []string
	CreatedAt   time.Time
}

// AppendAudit records a guard decision in the audit trail.
func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	citations, err := json.Marshal(e.Citations)
	if err != nil {
		return errors.Wrap(err, "encode citations")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (agent_id, action, verdict, severity, explanation, citations)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.AgentID, e.Action, e.Verdict, e.Severity, e.Explanation, string(citations))
	if err != nil {
		return errors.Wrap(err, "append audit entry")
	}
	return nil
}

// RecordViolation records a non-Allow decision against an agent.
func (s *Store) RecordViolation(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_violations (agent_id, action, verdict, severity, explanation)
		VALUES (?, ?, ?, ?, ?)`,
		e.AgentID, e.Action, e.Verdict, e.Severity, e.Explanation)
	if err != nil {
		return errors.Wrap(err, "record violation")
	}
	return nil
}

// RecentDecisions returns the latest audit entries, newest first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, action, verdict, severity, explanation, citations, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query audit log")
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// ViolationsByAgent returns the agent's recorded violations, newest first.
func (s *Store) ViolationsByAgent(ctx context.Context, agentID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, action, verdict, severity, explanation, '[]', created_at
		FROM policy_violations WHERE agent_id = ? ORDER BY id DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query violations")
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAuditRows(rows rowScanner) ([]AuditEntry, error) {
	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var citations string
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Action, &e.Verdict,
			&e.Severity, &e.Explanation, &citations, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan audit row")
		}
		if err := json.Unmarshal([]byte(citations), &e.Citations); err != nil {
			e.Citations = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
