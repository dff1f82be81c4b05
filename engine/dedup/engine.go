// Package dedup decides whether an incoming article is a near-duplicate of
// previously stored content using embedding similarity.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/semantic"
)

const (
	// Threshold is the cosine similarity at or above which the nearest
	// non-duplicate neighbor makes the candidate a duplicate.
	Threshold = 0.90
	// neighborK bounds the nearest-neighbor fetch so float-equal ties at the
	// maximum can be broken by article id.
	neighborK = 5
	// tieEpsilon treats similarities within this distance of the maximum as
	// floating-point equal.
	tieEpsilon = 1e-9
)

// Embedder provides the candidate article's embedding.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// NearestSearcher abstracts the similarity index lookup.
type NearestSearcher interface {
	Nearest(ctx context.Context, embedding []float32, k int, excludeDuplicates bool) ([]semantic.Neighbor, error)
}

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	IsDuplicate bool    `json:"is_duplicate"`
	DuplicateOf int64   `json:"duplicate_of,omitempty"`
	Similarity  float64 `json:"similarity"`
	// Embedding is the candidate's vector, returned so the caller can index
	// it without a second generator call.
	Embedding []float32 `json:"-"`
}

// Engine makes duplicate decisions against the similarity index.
type Engine struct {
	embed     Embedder
	index     NearestSearcher
	threshold float64
	logger    *slog.Logger
}

// New creates an Engine. threshold <= 0 uses the default.
func New(embed Embedder, index NearestSearcher, threshold float64, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = Threshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embed: embed, index: index, threshold: threshold, logger: logger}
}

// Check embeds the article and queries the index for its nearest
// non-duplicate neighbor. Duplicates are never candidates as targets, so a
// duplicate's reference always points at a non-duplicate article and chains
// cannot form. When several neighbors are float-equal at the maximum
// similarity, the lowest article id (earliest ingested) wins as canonical.
//
// An unreachable index fails the check with domain.ErrIndexUnavailable: the
// caller must not proceed as "not duplicate".
func (e *Engine) Check(ctx context.Context, article domain.Article) (Verdict, error) {
	text := article.Title + "\n" + article.Content
	vec, err := e.embed.Embedding(ctx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("dedup: embed article: %w", err)
	}

	neighbors, err := e.index.Nearest(ctx, vec, neighborK, true)
	if err != nil {
		return Verdict{}, fmt.Errorf("dedup: nearest lookup: %w", err)
	}
	if len(neighbors) == 0 {
		return Verdict{Embedding: vec}, nil
	}

	best := neighbors[0]
	for _, n := range neighbors[1:] {
		switch {
		case n.Similarity > best.Similarity+tieEpsilon:
			best = n
		case n.Similarity > best.Similarity-tieEpsilon && n.ArticleID < best.ArticleID:
			best = n
		}
	}

	if best.Similarity >= e.threshold {
		e.logger.Info("dedup: duplicate detected",
			"duplicate_of", best.ArticleID,
			"similarity", best.Similarity,
		)
		return Verdict{
			IsDuplicate: true,
			DuplicateOf: best.ArticleID,
			Similarity:  best.Similarity,
			Embedding:   vec,
		}, nil
	}
	return Verdict{Similarity: best.Similarity, Embedding: vec}, nil
}
