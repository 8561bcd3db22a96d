package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    []string
}

func (s *stubEmbedder) Embed(_ context.Context, input string) (EmbeddingResult, error) {
	s.got = append(s.got, input)
	return s.result, s.err
}

type stubBatchEmbedder struct {
	stubEmbedder
	batches [][]string
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, inputs []string) (BatchEmbeddingResult, error) {
	s.batches = append(s.batches, inputs)
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i)}
	}
	return BatchEmbeddingResult{Embeddings: out, TotalTokens: len(inputs)}, nil
}

func TestPromptEmbedder_PrependsPrompt(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := NewPromptEmbedder(inner, "a photo of ")

	result, err := emb.Embed(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.got) != 1 || inner.got[0] != "a photo of a cat" {
		t.Errorf("expected prepended text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
}

func TestPromptEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewPromptEmbedder(&stubEmbedder{err: innerErr}, "p: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestPromptEmbedder_BatchUsesInnerBatch(t *testing.T) {
	inner := &stubBatchEmbedder{}
	emb := NewPromptEmbedder(inner, "q: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.batches) != 1 || inner.batches[0][0] != "q: a" || inner.batches[0][1] != "q: b" {
		t.Errorf("unexpected batch calls: %v", inner.batches)
	}
	if len(inner.got) != 0 {
		t.Errorf("single Embed must not be called, got %v", inner.got)
	}
	if len(res.Embeddings) != 2 || res.TotalTokens != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestBatchFallback_SumsUsage(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{1}, PromptTokens: 2, TotalTokens: 3}}

	res, err := Batch(context.Background(), inner, []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 6 || res.TotalTokens != 9 {
		t.Errorf("unexpected usage: %+v", res)
	}
}

func TestBatchFallback_StopsOnError(t *testing.T) {
	inner := &stubEmbedder{err: errors.New("boom")}
	if _, err := BatchFallback(context.Background(), inner, []string{"x", "y"}); err == nil {
		t.Fatal("expected error")
	}
	if len(inner.got) != 1 {
		t.Errorf("expected to stop after first failure, got %d calls", len(inner.got))
	}
}
