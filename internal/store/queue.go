package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/conclave-sh/conclave/internal/errors"
)

// DefaultQueueMaxLen bounds each queue. Appends past the bound evict
// the oldest entries.
const DefaultQueueMaxLen = 1000

// QueueEntry is one durable queue row.
type QueueEntry struct {
	Seq       int64
	Queue     string
	Payload   []byte
	CreatedAt time.Time
}

// Enqueue appends a message payload to the queue and trims it to the
// bound.
func (s *Store) Enqueue(ctx context.Context, queue string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin enqueue")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO queue (recipient, message) VALUES (?, ?)",
		queue, string(payload))
	if err != nil {
		return 0, errors.Wrapf(err, "enqueue for %s", queue)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "enqueue sequence")
	}

	// Oldest-first eviction past the bound.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM queue WHERE recipient = ? AND seq NOT IN (
			SELECT seq FROM queue WHERE recipient = ? ORDER BY seq DESC LIMIT ?
		)`, queue, queue, DefaultQueueMaxLen); err != nil {
		return 0, errors.Wrapf(err, "trim queue for %s", queue)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit enqueue")
	}
	return seq, nil
}

// ReadNew returns up to limit entries past the consumer's delivery
// cursor on the queue and advances that cursor. Cursors are tracked per
// (queue, consumer), so a shared broadcast queue delivers to every
// consumer independently. Entries stay in the queue until evicted; the
// cursor is what marks delivery.
func (s *Store) ReadNew(ctx context.Context, queue, consumer string, limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin read")
	}
	defer tx.Rollback()

	var cursor int64
	err = tx.QueryRowContext(ctx,
		"SELECT delivered_seq FROM queue_cursors WHERE queue = ? AND consumer = ?",
		queue, consumer).Scan(&cursor)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrapf(err, "load cursor for %s/%s", queue, consumer)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, message, created_at FROM queue
		WHERE recipient = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
		queue, cursor, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "read queue %s", queue)
	}

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		var payload string
		if err := rows.Scan(&e.Seq, &payload, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan queue row")
		}
		e.Queue = queue
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate queue rows")
	}
	rows.Close()

	if len(entries) > 0 {
		last := entries[len(entries)-1].Seq
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_cursors (queue, consumer, delivered_seq) VALUES (?, ?, ?)
			ON CONFLICT(queue, consumer) DO UPDATE SET delivered_seq = excluded.delivered_seq`,
			queue, consumer, last); err != nil {
			return nil, errors.Wrapf(err, "advance cursor for %s/%s", queue, consumer)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit read")
	}
	return entries, nil
}

// Acknowledge marks entries up to seq as processed by the consumer.
// Acknowledgment is an audit signal; it never rewinds delivery.
func (s *Store) Acknowledge(ctx context.Context, queue, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_cursors (queue, consumer, delivered_seq, acked_seq) VALUES (?, ?, ?, ?)
		ON CONFLICT(queue, consumer) DO UPDATE SET acked_seq = MAX(acked_seq, excluded.acked_seq)`,
		queue, consumer, seq, seq)
	if err != nil {
		return errors.Wrapf(err, "acknowledge %d on %s for %s", seq, queue, consumer)
	}
	return nil
}

// QueueDepth returns how many entries sit past the consumer's delivery
// cursor on the queue.
func (s *Store) QueueDepth(ctx context.Context, queue, consumer string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var depth int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue
		WHERE recipient = ? AND seq > COALESCE(
			(SELECT delivered_seq FROM queue_cursors WHERE queue = ? AND consumer = ?), 0)`,
		queue, queue, consumer).Scan(&depth)
	if err != nil {
		return 0, errors.Wrapf(err, "queue depth for %s", queue)
	}
	return depth, nil
}
