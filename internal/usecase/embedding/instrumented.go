// Package embedding decorates the encoder with request chunking, output
// validation and logging.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain"
)

// DefaultMaxAPIBatchSize — максимальный размер батча для одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// InstrumentedEmbedder wraps an Embedder with chunking, a dimension check and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	dim      int
	maxBatch int
	logger   *zap.Logger
}

// Option configures an InstrumentedEmbedder.
type Option func(*InstrumentedEmbedder)

// WithDim rejects embeddings whose length differs from dim. 0 disables the check.
func WithDim(dim int) Option {
	return func(p *InstrumentedEmbedder) { p.dim = dim }
}

// WithMaxBatch caps the inputs sent in one request.
func WithMaxBatch(n int) Option {
	return func(p *InstrumentedEmbedder) {
		if n > 0 {
			p.maxBatch = n
		}
	}
}

// NewInstrumentedEmbedder wraps an embedder with observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string, logger *zap.Logger, opts ...Option,
) *InstrumentedEmbedder {
	p := &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		maxBatch: DefaultMaxAPIBatchSize,
		logger:   logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Embed delegates to the inner embedder and validates the result.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, input string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, input)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	if err := p.checkDim(result.Embedding); err != nil {
		return domain.EmbeddingResult{}, err
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed разбивает на sub-batches и делегирует inner.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, inputs []string,
) (domain.BatchEmbeddingResult, error) {
	if len(inputs) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, inputs)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(inputs)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// embedChunked разбивает входы на чанки по maxBatch.
func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, inputs []string,
) (domain.BatchEmbeddingResult, error) {
	allEmbeddings := make([][]float32, 0, len(inputs))
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(inputs); offset += p.maxBatch {
		end := min(offset+p.maxBatch, len(inputs))
		chunk := inputs[offset:end]

		chunkResult, err := domain.Batch(ctx, p.inner, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(chunkResult.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: got %d embeddings for %d inputs: %w",
				len(chunkResult.Embeddings), len(chunk), domain.ErrEmbeddingProviderError)
		}
		for _, e := range chunkResult.Embeddings {
			if err := p.checkDim(e); err != nil {
				return domain.BatchEmbeddingResult{}, err
			}
		}

		allEmbeddings = append(allEmbeddings, chunkResult.Embeddings...)
		totalPrompt += chunkResult.PromptTokens
		totalTokens += chunkResult.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) checkDim(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding: %w", domain.ErrEmbeddingProviderError)
	}
	if p.dim > 0 && len(v) != p.dim {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(v), p.dim)
	}
	return nil
}
