package search

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/domain/run"
)

// LexicalSearcher runs BM25 queries against a named index.
type LexicalSearcher interface {
	Backend() string
	Exists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, name string, queries []string, k int) ([][]run.Hit, error)
}

// VectorSearcher runs inner-product KNN queries against a named index.
type VectorSearcher interface {
	Exists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, name string, vectors [][]float32, k int) ([][]run.Hit, error)
}
