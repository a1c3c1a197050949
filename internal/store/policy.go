package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/policy"
)

// ActivePolicy returns the currently active policy document, or
// ErrPolicyUnavailable when none has been persisted.
func (s *Store) ActivePolicy(ctx context.Context) (*policy.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM policy_documents WHERE active = 1 ORDER BY version DESC LIMIT 1").
		Scan(&content)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrPolicyUnavailable, "no active policy document")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load active policy")
	}

	var doc policy.Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, errors.Wrap(err, "decode policy document")
	}
	return &doc, nil
}

// SavePolicy persists a document version. When activate is true the
// previous active version is retired in the same transaction.
func (s *Store) SavePolicy(ctx context.Context, doc *policy.Document, activate bool) error {
	content, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode policy document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin policy save")
	}
	defer tx.Rollback()

	if activate {
		if _, err := tx.ExecContext(ctx, "UPDATE policy_documents SET active = 0"); err != nil {
			return errors.Wrap(err, "retire previous policy")
		}
	}

	active := 0
	if activate {
		active = 1
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO policy_documents (version, content, active) VALUES (?, ?, ?)",
		doc.Version, string(content), active); err != nil {
		return errors.Wrapf(err, "save policy version %d", doc.Version)
	}

	return tx.Commit()
}

// PolicyVersions lists the persisted versions, newest first, with the
// active one flagged.
func (s *Store) PolicyVersions(ctx context.Context) ([]PolicyVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT version, active FROM policy_documents ORDER BY version DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list policy versions")
	}
	defer rows.Close()

	var versions []PolicyVersion
	for rows.Next() {
		var v PolicyVersion
		var active int
		if err := rows.Scan(&v.Version, &active); err != nil {
			return nil, errors.Wrap(err, "scan policy version")
		}
		v.Active = active == 1
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// PolicyVersion is one row of the version history.
type PolicyVersion struct {
	Version int
	Active  bool
}
