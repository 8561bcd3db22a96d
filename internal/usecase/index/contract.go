package index

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/repository/lexical"
	"github.com/kailas-cloud/crossret/internal/repository/vector"
)

// LexicalStore builds BM25 indexes in the external engine.
type LexicalStore interface {
	Backend() string
	Create(ctx context.Context, name string) error
	Add(ctx context.Context, name string, docs []lexical.Doc) error
	Commit(ctx context.Context, name string) error
	Count(ctx context.Context, name string) (int, error)
}

// VectorStore builds inner-product vector indexes in the external engine.
type VectorStore interface {
	KeyPrefix(name string) string
	Create(ctx context.Context, spec vector.Spec) error
	Add(ctx context.Context, name string, dim int, ids []string, vectors [][]float32) error
	Count(ctx context.Context, name string) (int, error)
}
