package store

import (
	"context"
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
)

// VoteRecord is the persisted outcome of a concluded deliberation.
type VoteRecord struct {
	DeliberationID string
	Kind           string
	Topic          string
	Outcome        string
	VotesFor       int
	VotesAgainst   int
	Abstentions    int
	OverrideBy     string
	OverrideReason string
	ConcludedAt    time.Time
}

// RecordVote persists a concluded deliberation's tally. Recording again
// with an override updates the override columns only.
func (s *Store) RecordVote(ctx context.Context, r VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes
			(deliberation_id, kind, topic, outcome, votes_for, votes_against, abstentions, override_by, override_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeliberationID, r.Kind, r.Topic, r.Outcome,
		r.VotesFor, r.VotesAgainst, r.Abstentions, r.OverrideBy, r.OverrideReason)
	if err != nil {
		return errors.Wrapf(err, "record vote %s", r.DeliberationID)
	}
	return nil
}

// RecordOverride attaches a Head override to an already recorded vote.
// The original tally columns are left untouched.
func (s *Store) RecordOverride(ctx context.Context, deliberationID, headID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE votes SET override_by = ?, override_reason = ?
		WHERE deliberation_id = ?`,
		headID, reason, deliberationID)
	if err != nil {
		return errors.Wrapf(err, "record override for %s", deliberationID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "no recorded vote for %s", deliberationID)
	}
	return nil
}

// RecentVotes returns concluded deliberations, newest first.
func (s *Store) RecentVotes(ctx context.Context, limit int) ([]VoteRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT deliberation_id, kind, topic, outcome, votes_for, votes_against, abstentions,
		       override_by, override_reason, concluded_at
		FROM votes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query votes")
	}
	defer rows.Close()

	var records []VoteRecord
	for rows.Next() {
		var r VoteRecord
		if err := rows.Scan(&r.DeliberationID, &r.Kind, &r.Topic, &r.Outcome,
			&r.VotesFor, &r.VotesAgainst, &r.Abstentions,
			&r.OverrideBy, &r.OverrideReason, &r.ConcludedAt); err != nil {
			return nil, errors.Wrap(err, "scan vote row")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
