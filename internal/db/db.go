package db

import (
	"context"
	"time"
)

// Store is the Redis-side facade used by the index repositories.
//
//nolint:interfacebloat // consumers depend on the narrow sub-interfaces
type Store interface {
	Pinger
	HashWriter
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
// Fields are written in the given order.
type HashSetItem struct {
	Key    string
	Fields []FieldValue
}

// FieldValue is one hash field.
type FieldValue struct {
	Name  string
	Value string
}

// HashWriter writes index documents (BM25 texts, vectors) as hashes.
type HashWriter interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
}

// KeyValue is one entry of a pipelined SET.
type KeyValue struct {
	Key   string
	Value []byte
}

// KVStore holds binary blobs such as cached embeddings.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// MGet returns one entry per key, nil where the key is missing.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMulti(ctx context.Context, items []KeyValue) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexDocCount(ctx context.Context, name string) (int, error)
}

// Searcher runs FT.SEARCH queries.
type Searcher interface {
	SearchKNNMulti(ctx context.Context, qs []*KNNQuery) ([]*SearchResult, error)
	SearchBM25(ctx context.Context, q *TextQuery) (*SearchResult, error)
}
