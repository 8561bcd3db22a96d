package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/crossret/internal/db/redis"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/repository/artifact"
	"github.com/kailas-cloud/crossret/internal/repository/embcache"
	"github.com/kailas-cloud/crossret/internal/repository/lexical"
	"github.com/kailas-cloud/crossret/internal/repository/rowindex"
	"github.com/kailas-cloud/crossret/internal/repository/vector"
	openaiEmb "github.com/kailas-cloud/crossret/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/crossret/internal/usecase/embedding"
)

func (a *app) readiness() time.Duration {
	return time.Duration(a.cfg.Database.ReadinessTimeout) * time.Second
}

// openRedis connects to Redis and waits until it answers.
func (a *app) openRedis(ctx context.Context) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Database.Addrs,
		Password: a.cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, a.readiness()); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	a.logger.Info("Connected to redis", zap.Strings("addrs", a.cfg.Database.Addrs))
	return store, nil
}

func (a *app) openElastic(ctx context.Context) (*elastic.Client, error) {
	es := a.cfg.Elasticsearch
	c, err := elastic.NewClient(elastic.Config{
		Addresses: es.Addresses,
		Username:  es.Username,
		Password:  es.Password,
		K1:        es.K1,
		B:         es.B,
		Analyzer:  es.Analyzer,
		Workers:   es.Workers,
	})
	if err != nil {
		return nil, err
	}
	if err := c.WaitForReady(ctx, a.readiness()); err != nil {
		return nil, fmt.Errorf("elasticsearch not ready: %w", err)
	}
	a.logger.Info("Connected to elasticsearch", zap.Strings("addresses", es.Addresses))
	return c, nil
}

// lexicalIndex opens the configured lexical backend. backend overrides the
// config when set. The returned func releases connections.
func (a *app) lexicalIndex(ctx context.Context, backend string) (lexical.Index, func(), error) {
	if backend == "" {
		backend = a.cfg.Index.LexicalBackend
	}
	switch backend {
	case lexical.BackendElasticsearch:
		c, err := a.openElastic(ctx)
		if err != nil {
			return nil, nil, err
		}
		return lexical.NewElastic(c, a.cfg.Search.MaxTerms), func() {}, nil
	case lexical.BackendRedis:
		store, err := a.openRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		idx := lexical.NewRedis(store, a.cfg.Storage.KeyPrefix, a.logger,
			lexical.WithMaxTerms(a.cfg.Search.MaxTerms),
			lexical.WithBatchSize(a.cfg.Index.BatchSize),
		)
		return idx, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lexical backend %q", backend)
	}
}

func (a *app) vectorIndex(store *dbRedis.Store) *vector.Index {
	return vector.New(store, a.cfg.Storage.KeyPrefix, a.cfg.Index.BatchSize, a.logger)
}

// embedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// store may be nil, which disables the cache.
func (a *app) embedder(store *dbRedis.Store, model string) domain.Embedder {
	ec := a.cfg.Embedding
	if model == "" {
		model = ec.Model
	}

	var inner domain.Embedder = a.embeddingProvider(model)
	if ec.Cache && store != nil {
		inner = embcache.New(inner, store, a.cfg.Storage.KeyPrefix, model, metrics.EmbeddingCacheTotal, a.logger)
	}
	return embeddinguc.NewInstrumentedEmbedder(inner, ec.Provider, model, a.logger,
		embeddinguc.WithDim(ec.Dimensions),
		embeddinguc.WithMaxBatch(ec.BatchSize),
	)
}

func (a *app) embeddingProvider(model string) *openaiEmb.Embedder {
	ec := a.cfg.Embedding
	if model == "" {
		model = ec.Model
	}
	return openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		MaxRetries: 3,
		Logger:     a.logger,
	})
}

func (a *app) qrelsSource() *dataset.QrelsSource {
	return dataset.NewQrelsSource(a.cfg.Dataset.DataDir, a.cfg.Dataset.Qrels)
}

// openAtomic opens a corpus table with its cached id index. withQrels also
// loads the split dictionary.
func (a *app) openAtomic(ctx context.Context, repo, idColumn string, withQrels bool) (*dataset.Atomic, error) {
	t, err := dataset.OpenCorpus(a.cfg.Dataset.DataDir, repo)
	if err != nil {
		return nil, err
	}
	var qs *qrel.Set
	if withQrels {
		if qs, err = a.qrelsSource().Qrels(ctx); err != nil {
			return nil, fmt.Errorf("load qrels: %w", err)
		}
	}
	cache := rowindex.ForTable(a.cfg.Cache.Dir, t.Name(), a.logger)
	return dataset.OpenAtomic(ctx, t, idColumn, cache, qs)
}

func (a *app) publisher() (*artifact.Publisher, error) {
	ac := a.cfg.Artifacts
	if ac.Endpoint == "" {
		return nil, fmt.Errorf("artifacts.endpoint is not configured")
	}
	return artifact.NewMinIO(artifact.Config{
		Endpoint:  ac.Endpoint,
		AccessKey: ac.AccessKey,
		SecretKey: ac.SecretKey,
		Bucket:    ac.Bucket,
		Prefix:    ac.Prefix,
		Region:    ac.Region,
		UseSSL:    ac.UseSSL,
	}, a.logger)
}
