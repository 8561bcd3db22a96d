// Package index builds lexical and dense indexes in external engines and
// records their handles on disk.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/db"
	"github.com/kailas-cloud/crossret/internal/domain/document"
	domidx "github.com/kailas-cloud/crossret/internal/domain/index"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/progress"
	"github.com/kailas-cloud/crossret/internal/repository/collection"
	"github.com/kailas-cloud/crossret/internal/repository/embedding"
	"github.com/kailas-cloud/crossret/internal/repository/lexical"
	"github.com/kailas-cloud/crossret/internal/repository/vector"
)

// Config holds index build settings.
type Config struct {
	OutputDir   string
	BatchSize   int
	HNSWM       int
	EFConstruct int
	Progress    bool
}

// Service builds indexes.
type Service struct {
	lexical LexicalStore
	vectors VectorStore
	cfg     Config
	logger  *zap.Logger
}

// New creates an index service. Either store may be nil when unused.
func New(lex LexicalStore, vec VectorStore, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Service{lexical: lex, vectors: vec, cfg: cfg, logger: logger}
}

// BuildLexical gathers the collection files of a setting into
// text-collection.<setting>[.<split>] and image-collection.<setting>[.<split>]
// as symlinks, ingests each into its BM25 index and writes both handles.
// Small needs the split it is built for.
func (s *Service) BuildLexical(ctx context.Context, st split.Setting, sp split.Split) ([]domidx.Handle, error) {
	if s.lexical == nil {
		return nil, fmt.Errorf("lexical store not configured")
	}
	splits, err := st.Splits(sp)
	if err != nil {
		return nil, err
	}
	defer logger.Timed(s.logger, "index_lexical",
		zap.String("setting", string(st)),
		zap.String("split", sp.String()),
	)()

	handles := make([]domidx.Handle, 0, 2)
	for _, m := range []struct{ modality, base string }{
		{domidx.ModalityText, collection.TextDir},
		{domidx.ModalityImage, collection.ImageDir},
	} {
		dir := collection.SettingDir(s.cfg.OutputDir, m.base, st, sp)
		files, err := s.linkCollection(dir, filepath.Join(s.cfg.OutputDir, m.base), splits)
		if err != nil {
			return nil, err
		}
		name := domidx.LexicalName(m.modality, st, sp)
		h, err := s.ingestLexical(ctx, name, dir, files)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// linkCollection recreates dir holding symlinks to the collection files of
// the given splits. Returns the links in split then name order.
func (s *Service) linkCollection(dir, srcDir string, splits []split.Split) ([]string, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	var links []string
	for _, sp := range splits {
		files, err := collection.Files(srcDir, sp.String())
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			target, err := filepath.Abs(f)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", f, err)
			}
			link := filepath.Join(dir, filepath.Base(f))
			if err := os.Symlink(target, link); err != nil {
				return nil, fmt.Errorf("link %s: %w", f, err)
			}
			links = append(links, link)
		}
	}
	if len(links) == 0 {
		s.logger.Warn("No collection files for setting", zap.String("dir", dir), zap.String("source", srcDir))
	}
	return links, nil
}

func (s *Service) ingestLexical(ctx context.Context, name, source string, files []string) (domidx.Handle, error) {
	start := time.Now()
	backend := s.lexical.Backend()

	if err := s.lexical.Create(ctx, name); err != nil {
		return domidx.Handle{}, fmt.Errorf("create %s: %w", name, err)
	}

	bar := progress.New(-1, "index "+name, s.cfg.Progress)
	defer func() { _ = bar.Finish() }()

	var (
		docids []string
		batch  = make([]lexical.Doc, 0, s.cfg.BatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.lexical.Add(ctx, name, batch); err != nil {
			return fmt.Errorf("add to %s: %w", name, err)
		}
		_ = bar.Add(len(batch))
		batch = batch[:0]
		return nil
	}

	err := collection.NewReader("").Read(ctx, files, func(d document.Document) error {
		docids = append(docids, d.ID())
		batch = append(batch, lexical.Doc{ID: d.ID(), Contents: d.Contents()})
		if len(batch) == s.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return domidx.Handle{}, err
	}
	if err := s.lexical.Commit(ctx, name); err != nil {
		return domidx.Handle{}, fmt.Errorf("commit %s: %w", name, err)
	}

	count, err := s.lexical.Count(ctx, name)
	if err != nil {
		return domidx.Handle{}, fmt.Errorf("count %s: %w", name, err)
	}
	if count != len(docids) {
		s.logger.Warn("Index document count differs from ingested documents",
			zap.String("index", name),
			zap.Int("ingested", len(docids)),
			zap.Int("indexed", count),
		)
	}

	h, err := domidx.Write(domidx.LexicalHandleDir(s.cfg.OutputDir, backend, name), domidx.Manifest{
		Kind:    domidx.KindLexical,
		Backend: backend,
		Name:    name,
		Source:  source,
	}, docids)
	if err != nil {
		return domidx.Handle{}, err
	}
	metrics.StageDuration.WithLabelValues("index_lexical").Observe(time.Since(start).Seconds())

	s.logger.Info("Lexical index built",
		zap.String("index", name),
		zap.String("backend", backend),
		zap.Int("documents", len(docids)),
		zap.String("handle", h.Dir),
	)
	return h, nil
}

// DenseRequest describes a dense index build.
type DenseRequest struct {
	EmbeddingDir string
	Index        string // handle path prefix
	Type         string // flat or hnsw
}

// BuildDense loads every shard of an embedding directory into an
// inner-product vector index and writes the handle <index>.<backend>.<type>.
func (s *Service) BuildDense(ctx context.Context, req DenseRequest) (domidx.Handle, error) {
	if s.vectors == nil {
		return domidx.Handle{}, fmt.Errorf("vector store not configured")
	}
	typ := strings.ToLower(req.Type)
	if typ == "" {
		typ = "flat"
	}
	algo, err := db.ParseVectorAlgorithm(typ)
	if err != nil {
		return domidx.Handle{}, err
	}
	defer logger.Timed(s.logger, "index_dense", zap.String("embeddings", req.EmbeddingDir))()
	start := time.Now()

	set, err := embedding.Load(req.EmbeddingDir)
	if err != nil {
		return domidx.Handle{}, fmt.Errorf("load embeddings: %w", err)
	}

	name := domidx.EngineName(req.Index)
	spec := vector.Spec{
		Name:        name,
		Dim:         set.Dim(),
		Algorithm:   algo,
		M:           s.cfg.HNSWM,
		EFConstruct: s.cfg.EFConstruct,
		Capacity:    set.Len(),
	}
	if err := s.vectors.Create(ctx, spec); err != nil {
		return domidx.Handle{}, fmt.Errorf("create %s: %w", name, err)
	}

	bar := progress.New(int64(set.Len()), "index "+name, s.cfg.Progress)
	defer func() { _ = bar.Finish() }()
	for lo := 0; lo < set.Len(); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, set.Len())
		rows := make([][]float32, 0, hi-lo)
		for i := lo; i < hi; i++ {
			rows = append(rows, set.Vector(i))
		}
		if err := s.vectors.Add(ctx, name, set.Dim(), set.IDs[lo:hi], rows); err != nil {
			return domidx.Handle{}, fmt.Errorf("add to %s: %w", name, err)
		}
		_ = bar.Add(hi - lo)
	}

	count, err := s.vectors.Count(ctx, name)
	if err != nil {
		return domidx.Handle{}, fmt.Errorf("count %s: %w", name, err)
	}
	if count != set.Len() {
		s.logger.Warn("Index document count differs from embeddings",
			zap.String("index", name),
			zap.Int("embeddings", set.Len()),
			zap.Int("indexed", count),
		)
	}

	h, err := domidx.Write(domidx.DenseHandleDir(req.Index, vector.Backend, typ), domidx.Manifest{
		Kind:      domidx.KindDense,
		Backend:   vector.Backend,
		Name:      name,
		KeyPrefix: s.vectors.KeyPrefix(name),
		Algorithm: string(algo),
		Metric:    string(db.DistanceIP),
		Dim:       set.Dim(),
		Source:    req.EmbeddingDir,
	}, set.IDs)
	if err != nil {
		return domidx.Handle{}, err
	}
	metrics.StageDuration.WithLabelValues("index_dense").Observe(time.Since(start).Seconds())

	s.logger.Info("Dense index built",
		zap.String("index", name),
		zap.String("algorithm", string(algo)),
		zap.Int("dim", set.Dim()),
		zap.Int("documents", set.Len()),
		zap.String("handle", h.Dir),
	)
	return h, nil
}
