package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/semantic"
)

// --- mocks ---

type mockEmbedder struct {
	vec      []float32
	err      error
	lastText string
}

func (m *mockEmbedder) Embedding(_ context.Context, text string) ([]float32, error) {
	m.lastText = text
	return m.vec, m.err
}

type mockIndex struct {
	neighbors   []semantic.Neighbor
	err         error
	lastK       int
	lastExclude bool
}

func (m *mockIndex) Nearest(_ context.Context, _ []float32, k int, excludeDuplicates bool) ([]semantic.Neighbor, error) {
	m.lastK = k
	m.lastExclude = excludeDuplicates
	return m.neighbors, m.err
}

func article() domain.Article {
	return domain.Article{Title: "RBI hikes repo rate", Content: "The central bank raised rates by 25bps."}
}

// --- tests ---

func TestCheck_DuplicateAtThreshold(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{neighbors: []semantic.Neighbor{{ArticleID: 42, Similarity: 0.90}}}
	eng := New(emb, idx, 0, nil)

	v, err := eng.Check(context.Background(), article())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsDuplicate {
		t.Errorf("similarity exactly at threshold must be duplicate")
	}
	if v.DuplicateOf != 42 {
		t.Errorf("duplicate_of = %d, want 42", v.DuplicateOf)
	}
	if v.Similarity != 0.90 {
		t.Errorf("similarity = %v, want 0.90", v.Similarity)
	}
	if len(v.Embedding) == 0 {
		t.Errorf("verdict must carry the embedding for reuse")
	}
}

func TestCheck_BelowThreshold(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{neighbors: []semantic.Neighbor{{ArticleID: 42, Similarity: 0.8999}}}
	eng := New(emb, idx, 0, nil)

	v, err := eng.Check(context.Background(), article())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IsDuplicate {
		t.Errorf("0.8999 must not be duplicate at threshold 0.90")
	}
	if v.Similarity != 0.8999 {
		t.Errorf("similarity should still be reported, got %v", v.Similarity)
	}
}

func TestCheck_EmptyIndex(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{}
	eng := New(emb, idx, 0, nil)

	v, err := eng.Check(context.Background(), article())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IsDuplicate {
		t.Errorf("empty index can have no duplicates")
	}
}

func TestCheck_TieBreaksToLowestID(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{neighbors: []semantic.Neighbor{
		{ArticleID: 9, Similarity: 0.95},
		{ArticleID: 3, Similarity: 0.95},
		{ArticleID: 5, Similarity: 0.95},
	}}
	eng := New(emb, idx, 0, nil)

	v, err := eng.Check(context.Background(), article())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.DuplicateOf != 3 {
		t.Errorf("tie must break to lowest article id, got %d", v.DuplicateOf)
	}
}

func TestCheck_HigherSimilarityBeatsLowerID(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{neighbors: []semantic.Neighbor{
		{ArticleID: 1, Similarity: 0.91},
		{ArticleID: 8, Similarity: 0.97},
	}}
	eng := New(emb, idx, 0, nil)

	v, _ := eng.Check(context.Background(), article())
	if v.DuplicateOf != 8 {
		t.Errorf("higher similarity must win over lower id, got %d", v.DuplicateOf)
	}
}

func TestCheck_ExcludesDuplicateTargets(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{}
	eng := New(emb, idx, 0, nil)

	if _, err := eng.Check(context.Background(), article()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !idx.lastExclude {
		t.Errorf("nearest lookup must exclude duplicates so chains cannot form")
	}
	if idx.lastK != neighborK {
		t.Errorf("k = %d, want %d", idx.lastK, neighborK)
	}
}

func TestCheck_EmbedsTitleAndContent(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	eng := New(emb, &mockIndex{}, 0, nil)

	a := article()
	if _, err := eng.Check(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := a.Title + "\n" + a.Content
	if emb.lastText != want {
		t.Errorf("embedded text = %q, want %q", emb.lastText, want)
	}
}

func TestCheck_IndexErrorFailsClosed(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{1, 0}}
	idx := &mockIndex{err: domain.ErrIndexUnavailable}
	eng := New(emb, idx, 0, nil)

	_, err := eng.Check(context.Background(), article())
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Errorf("index failure must surface, got %v", err)
	}
}

func TestCheck_EmbedError(t *testing.T) {
	emb := &mockEmbedder{err: domain.ErrEmbeddingService}
	eng := New(emb, &mockIndex{}, 0, nil)

	_, err := eng.Check(context.Background(), article())
	if !errors.Is(err, domain.ErrEmbeddingService) {
		t.Errorf("embed failure must surface, got %v", err)
	}
}
