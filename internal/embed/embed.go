// Package embed maps chunk texts to fixed-dimension vectors through a Genkit
// ai.Embedder.
//
// Exactly one embedding backend is active per process: the provider is
// constructed once at startup from configuration and injected everywhere an
// embedding is needed. Storage-time and query-time embeddings therefore
// always share one vector space: similarity scores are meaningless across
// different spaces, so the backend is never switched or probed at runtime.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyEmbedding indicates the backend returned no vector for an input.
	ErrEmptyEmbedding = errors.New("empty embedding returned")

	// ErrDimensionMismatch indicates the backend returned vectors of
	// inconsistent dimensions within one call.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// batchSize is the number of texts sent to the backend per request.
const batchSize = 16

// maxConcurrentBatches bounds parallel requests to the embedding backend.
const maxConcurrentBatches = 4

// Provider embeds texts with a single fixed backend strategy.
//
// Provider is safe for concurrent use by multiple goroutines.
type Provider struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewProvider creates a Provider. rps throttles backend calls (requests per
// second); a non-positive value disables throttling. A nil logger falls back
// to slog.Default().
func NewProvider(embedder ai.Embedder, rps float64, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Provider{
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// EmbedTexts maps an ordered list of texts to an ordered list of vectors:
// result[i] always corresponds to texts[i]. Batches run concurrently but
// results are placed by index, so ordering is preserved regardless of
// completion order.
func (p *Provider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			batch, err := p.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// All vectors must live in one space; a dimension mismatch means the
	// backend misbehaved and nothing from this call is usable.
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string with the same strategy used at
// storage time.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *Provider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embedding rate limiter: %w", err)
	}

	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}

	resp, err := p.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d texts: %w", len(texts), err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmptyEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: input %d", ErrEmptyEmbedding, i)
		}
		vectors[i] = e.Embedding
	}

	p.logger.Debug("embedded batch", "texts", len(texts), "dimension", len(vectors[0]))
	return vectors, nil
}
