package lexical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/crossret/internal/db/elastic"
	"github.com/kailas-cloud/crossret/internal/domain/run"
	"github.com/kailas-cloud/crossret/internal/metrics"
)

// esClient is the consumer interface for the Elasticsearch backend (ISP).
type esClient interface {
	CreateIndex(ctx context.Context, name, field string) error
	DeleteIndex(ctx context.Context, name string) error
	Refresh(ctx context.Context, name string) error
	BulkIndex(ctx context.Context, name, field string, docs []elastic.Doc) (int, error)
	MultiSearch(ctx context.Context, name, field string, texts []string, size int) ([][]elastic.Hit, error)
	Count(ctx context.Context, name string) (int, error)
	IndexExists(ctx context.Context, name string) (bool, error)
}

// ElasticIndex stores documents in an Elasticsearch index with BM25 similarity.
type ElasticIndex struct {
	client   esClient
	maxTerms int
}

// NewElastic creates an Elasticsearch-backed lexical index store.
// Queries are cut to maxTerms distinct terms to stay under max_clause_count.
func NewElastic(c esClient, maxTerms int) *ElasticIndex {
	if maxTerms <= 0 {
		maxTerms = DefaultMaxTerms
	}
	return &ElasticIndex{client: c, maxTerms: maxTerms}
}

// Backend implements Index.
func (e *ElasticIndex) Backend() string { return BackendElasticsearch }

// Create implements Index.
func (e *ElasticIndex) Create(ctx context.Context, name string) error {
	if err := e.Drop(ctx, name); err != nil {
		return err
	}
	if err := e.client.CreateIndex(ctx, name, fieldContents); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Add implements Index.
func (e *ElasticIndex) Add(ctx context.Context, name string, docs []Doc) error {
	batch := make([]elastic.Doc, len(docs))
	for i, d := range docs {
		batch[i] = elastic.Doc{ID: d.ID, Text: d.Contents}
	}
	n, err := e.client.BulkIndex(ctx, name, fieldContents, batch)
	metrics.IndexDocumentsTotal.WithLabelValues(BackendElasticsearch, "lexical").Add(float64(n))
	if err != nil {
		return fmt.Errorf("add to %s: %w", name, err)
	}
	return nil
}

// Commit implements Index.
func (e *ElasticIndex) Commit(ctx context.Context, name string) error {
	return e.client.Refresh(ctx, name)
}

// Search implements Index. Queries go out as a single _msearch.
func (e *ElasticIndex) Search(ctx context.Context, name string, queries []string, k int) ([][]run.Hit, error) {
	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = strings.Join(Terms(q, e.maxTerms), " ")
	}

	start := time.Now()
	res, err := e.client.MultiSearch(ctx, name, fieldContents, texts, k)
	metrics.SearchDuration.WithLabelValues(BackendElasticsearch).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchQueriesTotal.WithLabelValues(BackendElasticsearch, "error").Add(float64(len(queries)))
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	metrics.SearchQueriesTotal.WithLabelValues(BackendElasticsearch, "success").Add(float64(len(queries)))

	out := make([][]run.Hit, len(res))
	for i, hits := range res {
		out[i] = make([]run.Hit, len(hits))
		for j, h := range hits {
			out[i][j] = run.Hit{DocID: h.ID, Score: h.Score}
		}
	}
	return out, nil
}

// Count implements Index.
func (e *ElasticIndex) Count(ctx context.Context, name string) (int, error) {
	n, err := e.client.Count(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Exists implements Index.
func (e *ElasticIndex) Exists(ctx context.Context, name string) (bool, error) {
	return e.client.IndexExists(ctx, name)
}

// Drop implements Index. A missing index is not an error.
func (e *ElasticIndex) Drop(ctx context.Context, name string) error {
	err := e.client.DeleteIndex(ctx, name)
	if err != nil && !errors.Is(err, elastic.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	return nil
}
