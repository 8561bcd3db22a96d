package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared vectorization contract between layers.
// Input is text or an image data URI.
type Embedder interface {
	Embed(ctx context.Context, input string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple inputs in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, inputs []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback вызывает Embed по одному для каждого входа. Safety net для провайдеров
// без нативного batch.
func BatchFallback(ctx context.Context, e Embedder, inputs []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(inputs))
	var totalPrompt, totalTokens int

	for i, input := range inputs {
		res, err := e.Embed(ctx, input)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// Batch embeds through BatchEmbed when e supports it, else one input at a time.
func Batch(ctx context.Context, e Embedder, inputs []string) (BatchEmbeddingResult, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.BatchEmbed(ctx, inputs)
	}
	return BatchFallback(ctx, e, inputs)
}

// PromptEmbedder is a domain decorator that prepends a prompt before embedding.
type PromptEmbedder struct {
	inner  Embedder
	prompt string
}

// NewPromptEmbedder creates a decorator that prepends prompt text.
func NewPromptEmbedder(inner Embedder, prompt string) *PromptEmbedder {
	return &PromptEmbedder{inner: inner, prompt: prompt}
}

// Embed prepends the prompt and delegates to the inner embedder.
func (e *PromptEmbedder) Embed(ctx context.Context, input string) (EmbeddingResult, error) {
	result, err := e.inner.Embed(ctx, e.prompt+input)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("prompt embed: %w", err)
	}
	return result, nil
}

// BatchEmbed prepends the prompt to each input and delegates to the inner embedder.
// Если inner не поддерживает batch — fallback на поштучный Embed.
func (e *PromptEmbedder) BatchEmbed(ctx context.Context, inputs []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(inputs))
	for i, t := range inputs {
		prefixed[i] = e.prompt + t
	}

	res, err := Batch(ctx, e.inner, prefixed)
	if err != nil {
		return BatchEmbeddingResult{}, fmt.Errorf("prompt batch embed: %w", err)
	}
	return res, nil
}
