package lexical

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/db"
	"github.com/kailas-cloud/crossret/internal/db/elastic"
)

// mockRedis implements redisStore for tests.
type mockRedis struct {
	items   []db.HashSetItem
	batches int
	created *db.IndexDefinition
	dropped []string

	dropErr    error
	searchFn   func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	docCountFn func(ctx context.Context, name string) (int, error)
	existsErr  error
}

func (m *mockRedis) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	m.batches++
	m.items = append(m.items, items...)
	return nil
}

func (m *mockRedis) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.created = def
	return nil
}

func (m *mockRedis) DropIndex(_ context.Context, name string, _ bool) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, name)
	return nil
}

func (m *mockRedis) IndexExists(_ context.Context, name string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.created != nil && m.created.Name == name, nil
}

func (m *mockRedis) IndexDocCount(ctx context.Context, name string) (int, error) {
	if m.docCountFn != nil {
		return m.docCountFn(ctx, name)
	}
	return len(m.items), nil
}

func (m *mockRedis) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

// mockES implements esClient for tests.
type mockES struct {
	created   []string
	deleted   []string
	refreshed []string
	docs      []elastic.Doc
	texts     []string

	deleteErr error
	bulkErr   error
	hits      [][]elastic.Hit
}

func (m *mockES) CreateIndex(_ context.Context, name, _ string) error {
	m.created = append(m.created, name)
	return nil
}

func (m *mockES) DeleteIndex(_ context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return m.deleteErr
}

func (m *mockES) Refresh(_ context.Context, name string) error {
	m.refreshed = append(m.refreshed, name)
	return nil
}

func (m *mockES) BulkIndex(_ context.Context, _, _ string, docs []elastic.Doc) (int, error) {
	if m.bulkErr != nil {
		return 0, m.bulkErr
	}
	m.docs = append(m.docs, docs...)
	return len(docs), nil
}

func (m *mockES) MultiSearch(_ context.Context, _, _ string, texts []string, _ int) ([][]elastic.Hit, error) {
	m.texts = texts
	if m.hits != nil {
		return m.hits, nil
	}
	return make([][]elastic.Hit, len(texts)), nil
}

func (m *mockES) IndexExists(_ context.Context, name string) (bool, error) {
	for _, c := range m.created {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockES) Count(context.Context, string) (int, error) {
	return len(m.docs), nil
}
