// Package search runs topics against built indexes and writes trec runs.
package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/document"
	domidx "github.com/kailas-cloud/crossret/internal/domain/index"
	"github.com/kailas-cloud/crossret/internal/domain/run"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/progress"
	"github.com/kailas-cloud/crossret/internal/repository/collection"
	"github.com/kailas-cloud/crossret/internal/repository/embedding"
	"github.com/kailas-cloud/crossret/internal/repository/trec"
)

// RunsDir is the directory of run files under the output root.
const RunsDir = "runs"

// Defaults.
const (
	DefaultLexicalHits = 1000
	DefaultDenseHits   = 100
	DefaultTag         = "crossret"
	DefaultOutputTag   = "atomic"
)

// Config holds search settings.
type Config struct {
	OutputDir string
	Threads   int
	BatchSize int
	Tag       string
	Progress  bool
}

// Service searches indexes.
type Service struct {
	lexical LexicalSearcher
	vectors VectorSearcher
	cfg     Config
	logger  *zap.Logger
}

// New creates a search service. Either searcher may be nil when unused.
func New(lex LexicalSearcher, vec VectorSearcher, cfg Config, logger *zap.Logger) *Service {
	if cfg.Threads <= 0 {
		cfg.Threads = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	return &Service{lexical: lex, vectors: vec, cfg: cfg, logger: logger}
}

// LexicalRunPath is <out>/runs/run.<split>.bm25-<backend>-default.<dir>.<setting>.trec.
func LexicalRunPath(outDir string, sp split.Split, backend string, d split.Direction, st split.Setting) string {
	name := fmt.Sprintf("run.%s.bm25-%s-default.%s.%s.trec", sp, backend, d, st)
	return filepath.Join(outDir, RunsDir, name)
}

// LexicalRequest selects the topics and indexes of a lexical search.
type LexicalRequest struct {
	Split   split.Split
	Setting split.Setting
	Hits    int
}

// SearchLexical runs both directions for a split against the indexes of a
// setting: image captions against the text index (i2t) and texts against
// the image index (t2i). Returns the written run paths, i2t first.
func (s *Service) SearchLexical(ctx context.Context, req LexicalRequest) ([]string, error) {
	if s.lexical == nil {
		return nil, fmt.Errorf("lexical searcher not configured")
	}
	if _, err := req.Setting.Splits(req.Split); err != nil {
		return nil, err
	}
	if req.Split == "" {
		return nil, fmt.Errorf("%w: search requires a split", domain.ErrInvalidSplit)
	}
	hits := req.Hits
	if hits <= 0 {
		hits = DefaultLexicalHits
	}
	defer logger.Timed(s.logger, "search_lexical",
		zap.String("split", req.Split.String()),
		zap.String("setting", string(req.Setting)),
	)()

	backend := s.lexical.Backend()
	legs := []struct {
		dir      split.Direction
		topics   string
		modality string
	}{
		{split.I2T, collection.ImageDir, domidx.ModalityText},
		{split.T2I, collection.TextDir, domidx.ModalityImage},
	}

	paths := make([]string, 0, len(legs))
	for _, leg := range legs {
		name := domidx.LexicalName(leg.modality, req.Setting, req.Split)
		h, err := domidx.Open(domidx.LexicalHandleDir(s.cfg.OutputDir, backend, name))
		if err != nil {
			return nil, err
		}
		if h.Manifest.Backend != backend {
			return nil, fmt.Errorf("%w: %s built by %s, searching with %s",
				domain.ErrBackendMismatch, name, h.Manifest.Backend, backend)
		}
		if err := requireIndex(ctx, s.lexical.Exists, h.Manifest.Name, backend); err != nil {
			return nil, err
		}

		topicDir := collection.SettingDir(s.cfg.OutputDir, leg.topics, req.Setting, req.Split)
		files, err := collection.Files(topicDir, req.Split.String())
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no %s topics in %s: %w", req.Split, topicDir, domain.ErrNotFound)
		}
		topics, err := collection.NewReader("").ReadAll(ctx, files)
		if err != nil {
			return nil, err
		}

		out := LexicalRunPath(s.cfg.OutputDir, req.Split, backend, leg.dir, req.Setting)
		if err := s.runLexical(ctx, h.Manifest.Name, topics, hits, out); err != nil {
			return nil, err
		}
		paths = append(paths, out)
	}
	return paths, nil
}

func (s *Service) runLexical(ctx context.Context, index string, topics []document.Document, hits int, out string) error {
	start := time.Now()
	queries := make([]string, len(topics))
	for i, d := range topics {
		queries[i] = d.Contents()
	}

	results, err := s.batched(ctx, len(queries), "search "+index, func(ctx context.Context, lo, hi int) ([][]run.Hit, error) {
		return s.lexical.Search(ctx, index, queries[lo:hi], hits)
	})
	if err != nil {
		return err
	}

	ids := make([]string, len(topics))
	for i, d := range topics {
		ids[i] = d.ID()
	}
	if err := writeRun(out, ids, results, hits, s.cfg.Tag); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("search_lexical").Observe(time.Since(start).Seconds())
	s.logger.Info("Run written",
		zap.String("index", index),
		zap.Int("topics", len(topics)),
		zap.String("path", out),
	)
	return nil
}

// DenseRequest describes a dense search.
type DenseRequest struct {
	Index     string // handle directory
	Topics    string // embedding directory
	Hits      int
	Output    string // empty: <out>/runs/run.<output_tag>.clip.txt
	OutputTag string
}

// DenseRunPath resolves the output path and tag of a dense run. Without an
// explicit output the file is run.<output_tag>.clip.txt and the tag is the
// file stem; an explicit output keeps the configured tag.
func DenseRunPath(outDir string, req DenseRequest, tag string) (string, string) {
	if req.Output != "" {
		return req.Output, tag
	}
	outputTag := req.OutputTag
	if outputTag == "" {
		outputTag = DefaultOutputTag
	}
	name := strings.Join([]string{"run", outputTag, "clip", "txt"}, ".")
	return filepath.Join(outDir, RunsDir, name), strings.TrimSuffix(name, ".txt")
}

// SearchDense runs every topic vector against a dense index. Returns the
// run path.
func (s *Service) SearchDense(ctx context.Context, req DenseRequest) (string, error) {
	if s.vectors == nil {
		return "", fmt.Errorf("vector searcher not configured")
	}
	hits := req.Hits
	if hits <= 0 {
		hits = DefaultDenseHits
	}
	defer logger.Timed(s.logger, "search_dense", zap.String("index", req.Index))()
	start := time.Now()

	h, err := domidx.Open(req.Index)
	if err != nil {
		return "", err
	}
	if h.Manifest.Kind != domidx.KindDense {
		return "", fmt.Errorf("%s is a %s index: %w", req.Index, h.Manifest.Kind, domain.ErrIndexNotFound)
	}

	topics, err := embedding.Load(req.Topics)
	if err != nil {
		return "", fmt.Errorf("load topics: %w", err)
	}
	if topics.Dim() != h.Manifest.Dim {
		return "", fmt.Errorf("%w: topics have %d dims, index %d",
			domain.ErrVectorDimMismatch, topics.Dim(), h.Manifest.Dim)
	}
	if err := requireIndex(ctx, s.vectors.Exists, h.Manifest.Name, h.Manifest.Backend); err != nil {
		return "", err
	}

	out, tag := DenseRunPath(s.cfg.OutputDir, req, s.cfg.Tag)
	s.logger.Info("Running topics",
		zap.String("topics", req.Topics),
		zap.Int("count", topics.Len()),
		zap.String("output", out),
	)

	results, err := s.batched(ctx, topics.Len(), "search "+h.Manifest.Name, func(ctx context.Context, lo, hi int) ([][]run.Hit, error) {
		vectors := make([][]float32, 0, hi-lo)
		for i := lo; i < hi; i++ {
			vectors = append(vectors, topics.Vector(i))
		}
		return s.vectors.Search(ctx, h.Manifest.Name, vectors, hits)
	})
	if err != nil {
		return "", err
	}

	if err := writeRun(out, topics.IDs, results, hits, tag); err != nil {
		return "", err
	}
	metrics.StageDuration.WithLabelValues("search_dense").Observe(time.Since(start).Seconds())
	return out, nil
}

// requireIndex fails when a handle outlives its engine index, e.g. after a
// Redis flush.
func requireIndex(ctx context.Context, exists func(context.Context, string) (bool, error), name, backend string) error {
	ok, err := exists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%s is missing from %s, rebuild it: %w", name, backend, domain.ErrIndexNotFound)
	}
	return nil
}

type batchFunc func(ctx context.Context, lo, hi int) ([][]run.Hit, error)

// batched splits n queries into batches of BatchSize, runs them on Threads
// workers and returns the hits in query order.
func (s *Service) batched(ctx context.Context, n int, desc string, fn batchFunc) ([][]run.Hit, error) {
	results := make([][]run.Hit, n)
	bar := progress.New(int64(n), desc, s.cfg.Progress)
	defer func() { _ = bar.Finish() }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Threads)
	for lo := 0; lo < n; lo += s.cfg.BatchSize {
		lo, hi := lo, min(lo+s.cfg.BatchSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fn(gctx, lo, hi)
			if err != nil {
				return err
			}
			if len(res) != hi-lo {
				return fmt.Errorf("got %d result lists for %d queries", len(res), hi-lo)
			}
			copy(results[lo:hi], res)
			_ = bar.Add(hi - lo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// writeRun writes ranked hits for each query in input order.
func writeRun(path string, queryIDs []string, results [][]run.Hit, hits int, tag string) error {
	w, err := trec.Create(path)
	if err != nil {
		return err
	}
	for i, qid := range queryIDs {
		if err := w.WriteEntries(run.Rank(qid, results[i], hits, tag)); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}
