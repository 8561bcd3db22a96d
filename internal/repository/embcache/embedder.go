package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/db"
	"github.com/kailas-cloud/crossret/internal/domain"
)

const keySegment = "emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMulti(ctx context.Context, items []db.KeyValue) error
}

// CachedEmbedder caches embeddings in a key-value store.
// Keys are scoped by model so switching encoders never serves stale vectors.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	keyPrefix  string
	model      string
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	keyPrefix, model string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keyPrefix:  keyPrefix,
		model:      model,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, input string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(input)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, input)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed input: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// BatchEmbed looks every input up in one MGET and sends only the misses
// to the inner embedder in one batch. Output order matches inputs.
// An unreachable cache degrades to embedding everything.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, inputs []string) (domain.BatchEmbeddingResult, error) {
	if len(inputs) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(inputs))
	for i, in := range inputs {
		keys[i] = c.cacheKey(in)
	}
	cached, err := c.store.MGet(ctx, keys)
	if err != nil {
		c.logger.Warn("Failed to get cached embeddings", zap.Int("keys", len(keys)), zap.Error(err))
		cached = nil
	}

	embeddings := make([][]float32, len(inputs))
	var missIdx []int
	var missInputs []string
	for i, in := range inputs {
		if i < len(cached) && len(cached[i]) > 0 {
			vec, err := db.DecodeVector(cached[i])
			if err == nil {
				c.incCache("hit")
				embeddings[i] = vec
				continue
			}
			c.logger.Warn("Failed to parse cached embedding", zap.String("key", keys[i]), zap.Error(err))
		}
		c.incCache("miss")
		missIdx = append(missIdx, i)
		missInputs = append(missInputs, in)
	}

	if len(missInputs) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
	}

	res, err := domain.Batch(ctx, c.inner, missInputs)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	if len(res.Embeddings) != len(missInputs) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"batch embed: got %d embeddings for %d inputs", len(res.Embeddings), len(missInputs))
	}

	items := make([]db.KeyValue, len(missIdx))
	for j, i := range missIdx {
		embeddings[i] = res.Embeddings[j]
		items[j] = db.KeyValue{Key: keys[i], Value: db.EncodeVector(res.Embeddings[j])}
	}
	if err := c.store.SetMulti(ctx, items); err != nil {
		c.logger.Warn("Failed to cache embeddings", zap.Int("keys", len(items)), zap.Error(err))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(input string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(input))
	return c.keyPrefix + keySegment + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := db.DecodeVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, db.EncodeVector(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
