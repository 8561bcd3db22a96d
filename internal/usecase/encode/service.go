// Package encode embeds corpus shards with the encoder and stores them as
// embedding shards.
package encode

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas/gonum"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/npy"
	"github.com/kailas-cloud/crossret/internal/progress"
	"github.com/kailas-cloud/crossret/internal/repository/embedding"
)

// AllSplits names the output directory when no split is selected.
const AllSplits = "all"

// Config holds encoding settings.
type Config struct {
	OutputDir string
	BatchSize int
	Workers   int
	DType     string // fp32, fp16, bf16
	Prompt    string // prepended to text inputs
	Progress  bool
}

// Request selects what to encode.
type Request struct {
	Type     Type
	Split    split.Split // empty encodes every row
	ShardID  int
	ShardNum int
}

// Result describes a written shard.
type Result struct {
	IDsPath    string
	MatrixPath string
	Count      int
	Dim        int
}

// Service encodes corpus shards.
type Service struct {
	corpus Corpus
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

// New creates an encode service.
func New(corpus Corpus, embed Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Service{corpus: corpus, embed: embed, cfg: cfg, logger: logger}
}

// StorageType maps an encoder precision to the stored matrix type.
// Half precisions are stored as float16, like the reference encoder output.
func StorageType(dtype string) (npy.DType, error) {
	switch dtype {
	case "", "fp32":
		return npy.Float32, nil
	case "fp16", "bf16":
		return npy.Float16, nil
	default:
		return "", fmt.Errorf("unknown dtype %q", dtype)
	}
}

// OutputDir is where a request's shard files go: <out>/<type>/<split>.
func (s *Service) OutputDir(req Request) string {
	sp := req.Split.String()
	if sp == "" {
		sp = AllSplits
	}
	return filepath.Join(s.cfg.OutputDir, string(req.Type), sp)
}

// Encode embeds every row of the request's shard, L2-normalizes the vectors
// and writes one embedding shard. Nothing is written when any batch fails.
func (s *Service) Encode(ctx context.Context, req Request) (Result, error) {
	stage := "encode_" + string(req.Type)
	defer logger.Timed(s.logger, stage,
		zap.String("split", req.Split.String()),
		zap.Int("shard_id", req.ShardID),
		zap.Int("shard_num", req.ShardNum),
	)()
	start := time.Now()

	dtype, err := StorageType(s.cfg.DType)
	if err != nil {
		return Result{}, err
	}
	col, err := newCollator(req.Type)
	if err != nil {
		return Result{}, err
	}
	rows, err := s.corpus.Select(req.Split, req.ShardID, req.ShardNum)
	if err != nil {
		return Result{}, fmt.Errorf("select rows: %w", err)
	}

	var embed domain.Embedder = s.embed
	if req.Type == TypeText && s.cfg.Prompt != "" {
		embed = domain.NewPromptEmbedder(embed, s.cfg.Prompt)
	}

	ids, vectors, err := s.run(ctx, rows, col, embed, string(req.Type))
	if err != nil {
		return Result{}, err
	}

	w := embedding.NewWriter(s.OutputDir(req), req.ShardID, req.ShardNum, dtype, string(req.Type))
	for i := range ids {
		if err := w.Add(ids[i], vectors[i]); err != nil {
			return Result{}, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	idsPath, vecPath, err := w.Flush()
	if err != nil {
		return Result{}, fmt.Errorf("write shard: %w", err)
	}
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	res := Result{IDsPath: idsPath, MatrixPath: vecPath, Count: w.Len()}
	if w.Len() > 0 {
		res.Dim = len(vectors[0][0])
	}
	s.logger.Info("Embedding shard written",
		zap.String("ids", idsPath),
		zap.String("matrix", vecPath),
		zap.Int("count", res.Count),
		zap.Int("dim", res.Dim),
	)
	return res, nil
}

// run collates rows into batches and embeds them on a bounded worker pool.
// Results are indexed by batch number so output order matches row order.
func (s *Service) run(
	ctx context.Context, rows Rows, col collator, embed domain.Embedder, label string,
) ([][]string, [][][]float32, error) {
	bs := s.cfg.BatchSize
	nBatches := (rows.Len() + bs - 1) / bs
	ids := make([][]string, nBatches)
	vectors := make([][][]float32, nBatches)

	bar := progress.New(int64(rows.Len()), "encode "+label, s.cfg.Progress)
	defer func() { _ = bar.Finish() }()
	var barMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	var (
		batchIDs []string
		inputs   []string
		next     int
	)
	dispatch := func() error {
		if next >= nBatches {
			return fmt.Errorf("more than %d rows in selection", rows.Len())
		}
		i, bIDs, bIn := next, batchIDs, inputs
		next++
		batchIDs, inputs = nil, nil
		g.Go(func() error {
			res, err := domain.Batch(gctx, embed, bIn)
			if err != nil {
				return fmt.Errorf("embed batch %d: %w", i, err)
			}
			if len(res.Embeddings) != len(bIn) {
				return fmt.Errorf("embed batch %d: got %d embeddings for %d inputs: %w",
					i, len(res.Embeddings), len(bIn), domain.ErrEmbeddingProviderError)
			}
			for _, v := range res.Embeddings {
				Normalize(v)
			}
			ids[i], vectors[i] = bIDs, res.Embeddings
			barMu.Lock()
			_ = bar.Add(len(bIn))
			barMu.Unlock()
			return nil
		})
		return nil
	}

	scanErr := rows.Scan(gctx, dataset.ScanOptions{Columns: col.columns}, func(_ int, rec record.Record) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		id, in, err := col.collate(rec)
		if err != nil {
			return err
		}
		batchIDs = append(batchIDs, id)
		inputs = append(inputs, in)
		if len(inputs) == bs {
			return dispatch()
		}
		return nil
	})
	if scanErr == nil && len(inputs) > 0 {
		scanErr = dispatch()
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if scanErr != nil {
		return nil, nil, fmt.Errorf("scan rows: %w", scanErr)
	}
	return ids[:next], vectors[:next], nil
}

var blas = gonum.Implementation{}

// Normalize scales v to unit L2 norm in place. Zero vectors are left as is.
func Normalize(v []float32) {
	n := blas.Snrm2(len(v), v, 1)
	if n == 0 {
		return
	}
	blas.Sscal(len(v), 1/n, v, 1)
}
