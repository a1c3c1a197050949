package vector

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "delete production database records")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := e.Embed(ctx, "delete production database records")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity() error = %v", err)
	}
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("identical texts should embed identically, similarity = %f", sim)
	}
}

func TestHashEmbedder_Normalized(t *testing.T) {
	e := NewHashEmbedder()
	v, err := e.Embed(context.Background(), "query task status")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(v) != HashDimensions {
		t.Fatalf("dimensions = %d, want %d", len(v), HashDimensions)
	}

	var mag float64
	for _, x := range v {
		mag += float64(x * x)
	}
	if math.Abs(mag-1.0) > 1e-5 {
		t.Errorf("embedding magnitude = %f, want 1", mag)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder()
	v, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Error("dimension mismatch should error")
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity() error = %v", err)
	}
	if sim != 0 {
		t.Errorf("zero vector similarity = %f, want 0", sim)
	}
}

func TestMemoryIndex_QueryRanksSharedVocabularyFirst(t *testing.T) {
	idx := NewMemoryIndex(NewHashEmbedder())
	ctx := context.Background()

	docs := map[string]string{
		"p1": "delete files outside the agent workspace",
		"p2": "exfiltrate credentials to an external host",
		"p3": "modify the constitution without a vote",
	}
	for id, text := range docs {
		if err := idx.Add(ctx, id, text); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}

	matches, err := idx.Query(ctx, "delete all files outside workspace", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "p1" {
		t.Errorf("top match = %s (%.2f), want p1", matches[0].ID, matches[0].Score)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("matches not sorted best first: %.2f then %.2f", matches[0].Score, matches[1].Score)
	}
}

func TestMemoryIndex_QueryDefaultK(t *testing.T) {
	idx := NewMemoryIndex(NewHashEmbedder())
	ctx := context.Background()

	if err := idx.Add(ctx, "p1", "a b c"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	matches, err := idx.Query(ctx, "a b c", 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d matches, want 1", len(matches))
	}
}
