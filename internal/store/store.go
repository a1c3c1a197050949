// Package store persists governance state in SQLite: the agent
// registry, policy documents, the audit trail, recorded votes, and the
// durable per-recipient message queue.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/logging"
)

// Store wraps a single SQLite database holding all governance tables.
// Methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logging.Logger
}

// Open initializes the database at path, creating the schema on first
// use.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set busy_timeout", "error", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set journal_mode", "error", err)
	}

	s := &Store{db: db, logger: logger.WithComponent("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id         TEXT PRIMARY KEY,
			parent_id  TEXT NOT NULL DEFAULT '',
			tier       INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS policy_documents (
			version    INTEGER PRIMARY KEY,
			content    TEXT NOT NULL,
			active     INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    TEXT NOT NULL,
			action      TEXT NOT NULL,
			verdict     TEXT NOT NULL,
			severity    TEXT NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			citations   TEXT NOT NULL DEFAULT '[]',
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS policy_violations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id    TEXT NOT NULL,
			action      TEXT NOT NULL,
			verdict     TEXT NOT NULL,
			severity    TEXT NOT NULL,
			explanation TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_agent ON policy_violations(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			deliberation_id TEXT NOT NULL,
			kind            TEXT NOT NULL,
			topic           TEXT NOT NULL,
			outcome         TEXT NOT NULL,
			votes_for       INTEGER NOT NULL,
			votes_against   INTEGER NOT NULL,
			abstentions     INTEGER NOT NULL,
			override_by     TEXT NOT NULL DEFAULT '',
			override_reason TEXT NOT NULL DEFAULT '',
			concluded_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queue (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			recipient  TEXT NOT NULL,
			message    TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_recipient ON queue(recipient, seq)`,
		`CREATE TABLE IF NOT EXISTS queue_cursors (
			queue         TEXT NOT NULL,
			consumer      TEXT NOT NULL,
			delivered_seq INTEGER NOT NULL DEFAULT 0,
			acked_seq     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (queue, consumer)
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "migrate schema")
		}
	}
	return nil
}
