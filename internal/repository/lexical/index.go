// Package lexical stores BM25 indices over document contents in Redis or
// Elasticsearch.
package lexical

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/domain/run"
)

// Backend names.
const (
	BackendRedis         = "redis"
	BackendElasticsearch = "elasticsearch"
)

// Doc is one indexable document.
type Doc struct {
	ID       string
	Contents string
}

// Index is a BM25 index store. Names are index names such as
// atomic.text.flat.base.
type Index interface {
	Backend() string
	// Create (re)creates an empty index, dropping any earlier one of the same name.
	Create(ctx context.Context, name string) error
	Add(ctx context.Context, name string, docs []Doc) error
	// Commit makes added documents visible to Search.
	Commit(ctx context.Context, name string) error
	// Search runs one query per entry in queries and returns up to k hits each.
	Search(ctx context.Context, name string, queries []string, k int) ([][]run.Hit, error)
	Count(ctx context.Context, name string) (int, error)
	Exists(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string) error
}
