package lexical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/db"
	"github.com/kailas-cloud/crossret/internal/domain/run"
	"github.com/kailas-cloud/crossret/internal/metrics"
)

const (
	fieldID       = "id"
	fieldContents = "contents"

	// DefaultMaxTerms caps OR-ed query terms; long captions otherwise blow up the query.
	DefaultMaxTerms = 256
	defaultBatch    = 500
)

// redisStore is the consumer interface for the Redis backend (ISP).
type redisStore interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexDocCount(ctx context.Context, name string) (int, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// RedisIndex keeps documents as hashes under <prefix>doc:<index>: and
// searches them with FT.SEARCH and the BM25STD scorer.
type RedisIndex struct {
	store     redisStore
	keyPrefix string
	language  string
	maxTerms  int
	batchSize int
	logger    *zap.Logger
}

// RedisOption configures a RedisIndex.
type RedisOption func(*RedisIndex)

// WithMaxTerms sets the query term cap.
func WithMaxTerms(n int) RedisOption {
	return func(r *RedisIndex) {
		if n > 0 {
			r.maxTerms = n
		}
	}
}

// WithBatchSize sets the number of hashes written per pipeline.
func WithBatchSize(n int) RedisOption {
	return func(r *RedisIndex) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// NewRedis creates a Redis-backed lexical index store.
func NewRedis(s redisStore, keyPrefix string, logger *zap.Logger, opts ...RedisOption) *RedisIndex {
	r := &RedisIndex{
		store:     s,
		keyPrefix: keyPrefix,
		language:  "english",
		maxTerms:  DefaultMaxTerms,
		batchSize: defaultBatch,
		logger:    logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Backend implements Index.
func (r *RedisIndex) Backend() string { return BackendRedis }

// DocPrefix is the key prefix of the hashes behind index name.
func (r *RedisIndex) DocPrefix(name string) string {
	return r.keyPrefix + "doc:" + name + ":"
}

// Create implements Index.
func (r *RedisIndex) Create(ctx context.Context, name string) error {
	if err := r.Drop(ctx, name); err != nil {
		return err
	}
	def, err := db.NewIndex(name).
		Prefix(r.DocPrefix(name)).
		Language(r.language).
		Text(fieldContents).
		Build()
	if err != nil {
		return fmt.Errorf("index definition %s: %w", name, err)
	}
	r.logger.Debug("Creating index", zap.Stringer("definition", def))
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Add implements Index.
func (r *RedisIndex) Add(ctx context.Context, name string, docs []Doc) error {
	prefix := r.DocPrefix(name)
	for start := 0; start < len(docs); start += r.batchSize {
		end := min(start+r.batchSize, len(docs))
		items := make([]db.HashSetItem, 0, end-start)
		for _, d := range docs[start:end] {
			items = append(items, db.HashSetItem{
				Key: prefix + d.ID,
				Fields: []db.FieldValue{
					{Name: fieldID, Value: d.ID},
					{Name: fieldContents, Value: d.Contents},
				},
			})
		}
		if err := r.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("add to %s: %w", name, err)
		}
		metrics.IndexDocumentsTotal.WithLabelValues(BackendRedis, "lexical").Add(float64(len(items)))
	}
	return nil
}

// Commit implements Index. Redis indexes hashes synchronously.
func (r *RedisIndex) Commit(context.Context, string) error { return nil }

// Search implements Index.
func (r *RedisIndex) Search(ctx context.Context, name string, queries []string, k int) ([][]run.Hit, error) {
	out := make([][]run.Hit, len(queries))
	prefix := r.DocPrefix(name)
	for i, q := range queries {
		terms := Terms(q, r.maxTerms)
		if len(terms) == 0 {
			continue
		}
		start := time.Now()
		res, err := r.store.SearchBM25(ctx, &db.TextQuery{
			IndexName:    name,
			Field:        fieldContents,
			Terms:        terms,
			TopK:         k,
			ReturnFields: []string{fieldID},
		})
		metrics.SearchDuration.WithLabelValues(BackendRedis).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.SearchQueriesTotal.WithLabelValues(BackendRedis, "error").Inc()
			return nil, fmt.Errorf("search %s: %w", name, err)
		}
		metrics.SearchQueriesTotal.WithLabelValues(BackendRedis, "success").Inc()
		out[i] = entriesToHits(res.Entries, prefix)
	}
	return out, nil
}

func entriesToHits(entries []db.SearchEntry, prefix string) []run.Hit {
	hits := make([]run.Hit, 0, len(entries))
	for _, e := range entries {
		id := e.Fields[fieldID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, prefix)
		}
		hits = append(hits, run.Hit{DocID: id, Score: e.Score})
	}
	return hits
}

// Count implements Index.
func (r *RedisIndex) Count(ctx context.Context, name string) (int, error) {
	n, err := r.store.IndexDocCount(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Exists implements Index.
func (r *RedisIndex) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", name, err)
	}
	return ok, nil
}

// Drop implements Index. A missing index is not an error.
func (r *RedisIndex) Drop(ctx context.Context, name string) error {
	err := r.store.DropIndex(ctx, name, true)
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	r.logger.Info("Dropped existing index", zap.String("index", name))
	return nil
}
