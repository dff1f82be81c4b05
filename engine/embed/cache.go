// Package embed provides the content-addressed embedding cache and the cosine
// similarity comparator. The cache exclusively owns the fingerprint→vector
// mapping; callers never mutate returned vectors.
package embed

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/pkg/fn"
)

const (
	// DefaultCacheSize bounds the LRU cache.
	DefaultCacheSize = 16384
	// MaxBatchSize is the largest batch sent to the generator in one call.
	MaxBatchSize = 2048
)

// Generator is the external embedding service contract. Implementations own
// their retry policy; the cache propagates failures without retrying.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache is a concurrency-safe, LRU-bounded embedding cache keyed by content
// fingerprint. Concurrent writes for the same fingerprint are idempotent
// because content-addressed values are deterministic: last write wins.
type Cache struct {
	gen     Generator
	vectors *lru.Cache[string, []float32]
	logger  *slog.Logger
}

// NewCache creates a Cache over the given generator. size <= 0 uses
// DefaultCacheSize.
func NewCache(gen Generator, size int, logger *slog.Logger) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	vectors, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embed: new cache: %w", err)
	}
	return &Cache{gen: gen, vectors: vectors, logger: logger}, nil
}

// Embedding returns the vector for text, consulting the cache first. A cache
// hit returns immediately without calling the generator.
func (c *Cache) Embedding(ctx context.Context, text string) ([]float32, error) {
	fp := Fingerprint(text)
	if v, ok := c.vectors.Get(fp); ok {
		return v, nil
	}
	v, err := c.gen.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: generate %s: %w: %v", fp, domain.ErrEmbeddingService, err)
	}
	c.vectors.Add(fp, v)
	return v, nil
}

// Embeddings returns vectors for all texts, preserving input order. Inputs
// are chunked to MaxBatchSize and cache-checked chunk by chunk, so partial
// cache hits never re-send already-cached items: at most one generator batch
// call is issued per distinct uncached fingerprint set.
func (c *Cache) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for _, chunk := range fn.Chunk(indices(len(texts)), MaxBatchSize) {
		// Resolve cache hits and collect misses, deduplicating fingerprints
		// within the chunk.
		missFP := make([]string, 0, len(chunk))
		missText := make([]string, 0, len(chunk))
		missIdx := make(map[string][]int, len(chunk))
		for _, i := range chunk {
			fp := Fingerprint(texts[i])
			if v, ok := c.vectors.Get(fp); ok {
				out[i] = v
				continue
			}
			if _, seen := missIdx[fp]; !seen {
				missFP = append(missFP, fp)
				missText = append(missText, texts[i])
			}
			missIdx[fp] = append(missIdx[fp], i)
		}
		if len(missFP) == 0 {
			continue
		}

		vectors, err := c.gen.EmbedBatch(ctx, missText)
		if err != nil {
			return nil, fmt.Errorf("embed: generate batch of %d: %w: %v", len(missText), domain.ErrEmbeddingService, err)
		}
		if len(vectors) != len(missText) {
			return nil, fmt.Errorf("embed: generator returned %d vectors for %d texts: %w", len(vectors), len(missText), domain.ErrEmbeddingService)
		}
		for j, fp := range missFP {
			c.vectors.Add(fp, vectors[j])
			for _, i := range missIdx[fp] {
				out[i] = vectors[j]
			}
		}
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int { return c.vectors.Len() }

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
