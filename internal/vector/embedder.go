// Package vector provides text embedding and similarity search for the
// semantic policy screen. The default backend is an in-memory cosine
// index over deterministic hash embeddings, so screening works without
// a model server. A sqlite-vec backed index is available behind the
// sqlite_vec build tag.
package vector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/conclave-sh/conclave/internal/errors"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the embedder name.
	Name() string
}

// HashDimensions is the dimensionality of the hash embedder.
const HashDimensions = 256

// HashEmbedder produces deterministic embeddings by hashing lowercase
// tokens into a fixed-dimension frequency vector and normalizing it.
// Two texts sharing vocabulary score high; disjoint texts score near
// zero. It needs no network and always yields the same vector for the
// same text.
type HashEmbedder struct{}

// NewHashEmbedder creates the deterministic local embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed hashes the text's tokens into a normalized frequency vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "embed")
	}

	v := make([]float32, HashDimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%HashDimensions]++
	}

	var mag float64
	for _, x := range v {
		mag += float64(x * x)
	}
	if mag == 0 {
		return v, nil
	}
	norm := float32(math.Sqrt(mag))
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

// Dimensions returns the fixed hash dimensionality.
func (e *HashEmbedder) Dimensions() int { return HashDimensions }

// Name identifies the embedder.
func (e *HashEmbedder) Name() string { return "hash" }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.NewValidationError("vector dimension mismatch").
			WithField("dimensions")
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i] * b[i])
		aMag += float64(a[i] * a[i])
		bMag += float64(b[i] * b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
