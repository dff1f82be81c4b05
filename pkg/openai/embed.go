// Package openai provides an OpenAI-compatible embedding generator backed by
// langchaingo. It owns its own retry and rate-limit policy; callers treat an
// error from it as final.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/FinSightAI/finsight-mvp/pkg/fn"
)

// DefaultDimensions is the vector size of text-embedding-3-small.
const DefaultDimensions = 1536

// Config for the embedding client.
type Config struct {
	BaseURL string
	Token   string
	Model   string
	// RequestsPerSecond limits calls to the upstream API; zero disables the
	// limiter.
	RequestsPerSecond float64
}

// EmbedClient generates embeddings via an OpenAI-compatible API.
type EmbedClient struct {
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	retry    fn.RetryOpts
	logger   *slog.Logger
}

// NewEmbedClient creates a client. Token may be a placeholder for local
// OpenAI-compatible services that skip auth.
func NewEmbedClient(cfg Config, logger *slog.Logger) (*EmbedClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: new client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("openai: new embedder: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &EmbedClient{
		embedder: embedder,
		limiter:  limiter,
		retry:    fn.DefaultRetry,
		logger:   logger,
	}, nil
}

// Embed generates the vector for one text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}
	return vecs[0], nil
}

// EmbedBatch generates vectors for several texts in one upstream call,
// retrying transient failures with backoff.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("openai: rate limit wait: %w", err)
		}
	}

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[][]float32] {
		vecs, err := c.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			c.logger.Warn("openai: embed attempt failed", "count", len(texts), "error", err)
			return fn.Err[[][]float32](err)
		}
		return fn.Ok(vecs)
	})
	vecs, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("openai: embed %d texts: %w", len(texts), err)
	}
	return vecs, nil
}
