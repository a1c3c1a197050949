package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/conclave-sh/conclave/internal/errors"
)

// Match is one similarity search result.
type Match struct {
	ID    string
	Text  string
	Score float64
}

// Index stores documents and answers nearest-neighbor queries by
// cosine similarity.
type Index interface {
	// Add embeds and stores a document under id.
	Add(ctx context.Context, id, text string) error

	// Query returns up to k documents most similar to text, best first.
	Query(ctx context.Context, text string, k int) ([]Match, error)

	// Len returns the number of stored documents.
	Len() int
}

// MemoryIndex is the default in-process Index. It keeps every document
// embedding in memory and scans linearly on query, which is fine at
// policy-corpus scale.
type MemoryIndex struct {
	mu       sync.RWMutex
	embedder Embedder
	docs     []memoryDoc
}

type memoryDoc struct {
	id   string
	text string
	vec  []float32
}

// NewMemoryIndex creates an empty index over the given embedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// Add embeds text and appends it to the corpus.
func (idx *MemoryIndex) Add(ctx context.Context, id, text string) error {
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return errors.Wrapf(err, "index document %s", id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = append(idx.docs, memoryDoc{id: id, text: text, vec: vec})
	return nil
}

// Reset drops the corpus. Used when a new policy version replaces the
// indexed one wholesale.
func (idx *MemoryIndex) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = nil
}

// Query embeds text and returns the top k matches by cosine similarity.
func (idx *MemoryIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		k = 10
	}

	query, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, len(idx.docs))
	for _, doc := range idx.docs {
		score, err := CosineSimilarity(query, doc.vec)
		if err != nil {
			continue
		}
		matches = append(matches, Match{ID: doc.id, Text: doc.text, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the corpus size.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}
