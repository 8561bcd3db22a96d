// Package vector stores dense embeddings in a Redis vector index and runs
// inner-product KNN over them.
package vector

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

// Backend is the backend name recorded in index handles and metrics.
const Backend = "redis"

const (
	fieldID     = "id"
	fieldVector = "vector"

	defaultBatch = 256
)

// ErrDimMismatch is returned when a vector does not match the index dimension.
var ErrDimMismatch = errors.New("vector dimension mismatch")

// store is the consumer interface for vector operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexDocCount(ctx context.Context, name string) (int, error)
	SearchKNNMulti(ctx context.Context, qs []*db.KNNQuery) ([]*db.SearchResult, error)
}

// Spec describes a vector index to create.
type Spec struct {
	Name        string
	Dim         int
	Algorithm   db.VectorAlgorithm
	M           int // HNSW only
	EFConstruct int // HNSW only
	Capacity    int // expected document count, 0 if unknown
}

// Index is a Redis-backed vector index store.
type Index struct {
	store     store
	keyPrefix string
	batchSize int
	logger    *zap.Logger
}

// New creates a vector index store.
func New(s store, keyPrefix string, batchSize int, logger *zap.Logger) *Index {
	if batchSize <= 0 {
		batchSize = defaultBatch
	}
	return &Index{store: s, keyPrefix: keyPrefix, batchSize: batchSize, logger: logger}
}

// KeyPrefix is the prefix of the hashes behind index name.
func (x *Index) KeyPrefix(name string) string {
	return x.keyPrefix + "vec:" + name + ":"
}

// Create (re)creates an empty inner-product index.
func (x *Index) Create(ctx context.Context, spec Spec) error {
	if err := x.Drop(ctx, spec.Name); err != nil {
		return err
	}

	b := db.NewIndex(spec.Name).Prefix(x.KeyPrefix(spec.Name))
	switch spec.Algorithm {
	case db.VectorHNSW:
		b = b.VectorHNSW(fieldVector, spec.Dim, db.DistanceIP, spec.M, spec.EFConstruct)
	case db.VectorFlat, "":
		b = b.VectorFlat(fieldVector, spec.Dim, db.DistanceIP, 0)
	default:
		return fmt.Errorf("unknown vector algorithm %q", spec.Algorithm)
	}
	if spec.Capacity > 0 {
		b = b.InitialCap(spec.Capacity)
	}

	def, err := b.Build()
	if err != nil {
		return fmt.Errorf("index definition %s: %w", spec.Name, err)
	}
	x.logger.Debug("Creating index", zap.Stringer("definition", def))
	if err := x.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	return nil
}

// Add writes ids[i] → vectors[i] in pipelined batches.
func (x *Index) Add(ctx context.Context, name string, dim int, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("add to %s: %d ids for %d vectors", name, len(ids), len(vectors))
	}
	prefix := x.KeyPrefix(name)
	for start := 0; start < len(ids); start += x.batchSize {
		end := min(start+x.batchSize, len(ids))
		items := make([]db.HashSetItem, 0, end-start)
		for i := start; i < end; i++ {
			if len(vectors[i]) != dim {
				return fmt.Errorf("%w: %s has %d, index has %d", ErrDimMismatch, ids[i], len(vectors[i]), dim)
			}
			items = append(items, db.HashSetItem{
				Key: prefix + ids[i],
				Fields: []db.FieldValue{
					{Name: fieldID, Value: ids[i]},
					{Name: fieldVector, Value: string(db.EncodeVector(vectors[i]))},
				},
			})
		}
		if err := x.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("add to %s: %w", name, err)
		}
		metrics.IndexDocumentsTotal.WithLabelValues(Backend, "dense").Add(float64(len(items)))
	}
	return nil
}

// Search runs one KNN query per vector, pipelined, and returns up to k hits
// each scored by inner product.
func (x *Index) Search(ctx context.Context, name string, vectors [][]float32, k int) ([][]run.Hit, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	qs := make([]*db.KNNQuery, len(vectors))
	for i, v := range vectors {
		qs[i] = &db.KNNQuery{
			IndexName:    name,
			Field:        fieldVector,
			Vector:       v,
			K:            k,
			ReturnFields: []string{fieldID},
		}
	}

	start := time.Now()
	res, err := x.store.SearchKNNMulti(ctx, qs)
	metrics.SearchDuration.WithLabelValues(Backend).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchQueriesTotal.WithLabelValues(Backend, "error").Add(float64(len(qs)))
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	metrics.SearchQueriesTotal.WithLabelValues(Backend, "success").Add(float64(len(qs)))

	prefix := x.KeyPrefix(name)
	out := make([][]run.Hit, len(res))
	for i, r := range res {
		hits := make([]run.Hit, 0, len(r.Entries))
		for _, e := range r.Entries {
			id := e.Fields[fieldID]
			if id == "" {
				id = strings.TrimPrefix(e.Key, prefix)
			}
			hits = append(hits, run.Hit{DocID: id, Score: e.Score})
		}
		out[i] = hits
	}
	return out, nil
}

// Count returns the number of indexed vectors.
func (x *Index) Count(ctx context.Context, name string) (int, error) {
	n, err := x.store.IndexDocCount(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Exists reports whether the engine holds index name.
func (x *Index) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := x.store.IndexExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", name, err)
	}
	return ok, nil
}

// Drop removes the index and its hashes. A missing index is not an error.
func (x *Index) Drop(ctx context.Context, name string) error {
	err := x.store.DropIndex(ctx, name, true)
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	x.logger.Info("Dropped existing index", zap.String("index", name))
	return nil
}
