//go:build sqlite_vec && cgo

package vector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"sync"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/conclave-sh/conclave/internal/errors"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	// vec.Auto() registers it as an auto-loadable extension.
	vec.Auto()
}

// SQLiteIndex is an Index persisted in SQLite with the sqlite-vec
// extension. Distances are computed in the database; the similarity
// returned is 1 minus the cosine distance.
type SQLiteIndex struct {
	mu       sync.RWMutex
	db       *sql.DB
	embedder Embedder
	count    int
}

// NewSQLiteIndex opens (or creates) a vector index at path.
func NewSQLiteIndex(path string, embedder Embedder) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open vector index")
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS policy_vectors (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create vector table")
	}

	idx := &SQLiteIndex{db: db, embedder: embedder}
	if err := db.QueryRow("SELECT COUNT(*) FROM policy_vectors").Scan(&idx.count); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "count vectors")
	}
	return idx, nil
}

// Add embeds text and upserts it under id.
func (idx *SQLiteIndex) Add(ctx context.Context, id, text string) error {
	embedding, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return errors.Wrapf(err, "index document %s", id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	res, err := idx.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO policy_vectors (id, content, embedding) VALUES (?, ?, ?)",
		id, text, encodeFloat32Blob(embedding))
	if err != nil {
		return errors.Wrapf(err, "store vector %s", id)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		idx.count = 0 // recount lazily on Len
	}
	return nil
}

// Query returns the k nearest documents by cosine distance.
func (idx *SQLiteIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		k = 10
	}

	query, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, content, vec_distance_cosine(embedding, ?) AS distance
		FROM policy_vectors
		ORDER BY distance ASC
		LIMIT ?`, encodeFloat32Blob(query), k)
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.ID, &m.Text, &distance); err != nil {
			continue
		}
		m.Score = 1.0 - distance
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate vector results")
	}
	return matches, nil
}

// Len returns the number of stored documents.
func (idx *SQLiteIndex) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.count == 0 {
		idx.db.QueryRow("SELECT COUNT(*) FROM policy_vectors").Scan(&idx.count)
	}
	return idx.count
}

// Close releases the underlying database.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

func encodeFloat32Blob(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}
