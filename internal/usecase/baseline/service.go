// Package baseline runs the BM25 baseline end to end: qrels, collections,
// lexical indexes, validation runs and their scores.
package baseline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/usecase/convert"
	"github.com/kailas-cloud/crossret/internal/usecase/evaluate"
	"github.com/kailas-cloud/crossret/internal/usecase/qrels"
	"github.com/kailas-cloud/crossret/internal/usecase/search"
)

// SearchSplit is the split whose topics the baseline runs.
const SearchSplit = split.Validation

// Service orchestrates the baseline stages.
type Service struct {
	outDir    string
	qrels     QrelsWriter
	converter Converter
	indexer   Indexer
	searcher  Searcher
	evaluator Evaluator
	logger    *zap.Logger
}

// New creates a baseline service. A nil evaluator skips scoring.
func New(
	outDir string,
	q QrelsWriter,
	c Converter,
	i Indexer,
	s Searcher,
	e Evaluator,
	logger *zap.Logger,
) *Service {
	return &Service{
		outDir:    outDir,
		qrels:     q,
		converter: c,
		indexer:   i,
		searcher:  s,
		evaluator: e,
		logger:    logger,
	}
}

// Result lists what the baseline produced.
type Result struct {
	Runs    []string
	Reports []evaluate.Report
}

// Run executes every stage in order and stops at the first error.
func (s *Service) Run(ctx context.Context) (Result, error) {
	defer logger.Timed(s.logger, "bm25_baseline")()

	s.logger.Info("Run prep qrels")
	if _, err := s.qrels.Write(ctx, s.outDir, split.Judged()); err != nil {
		return Result{}, fmt.Errorf("qrels: %w", err)
	}

	for _, sp := range split.All() {
		for _, f := range convert.Fields() {
			s.logger.Info("Run encode", zap.Stringer("split", sp), zap.String("field", string(f)))
			if _, err := s.converter.Convert(ctx, sp, f); err != nil {
				return Result{}, fmt.Errorf("convert %s %s: %w", sp, f, err)
			}
		}
	}

	for _, b := range builds() {
		s.logger.Info("Run create index", zap.String("setting", string(b.setting)), zap.Stringer("split", b.split))
		if _, err := s.indexer.BuildLexical(ctx, b.setting, b.split); err != nil {
			return Result{}, fmt.Errorf("index %s: %w", b.setting, err)
		}
	}

	var res Result
	for _, st := range []split.Setting{split.Small, split.Base, split.Large} {
		s.logger.Info("Run search", zap.String("setting", string(st)))
		runs, err := s.searcher.SearchLexical(ctx, search.LexicalRequest{Split: SearchSplit, Setting: st})
		if err != nil {
			return Result{}, fmt.Errorf("search %s: %w", st, err)
		}
		res.Runs = append(res.Runs, runs...)

		if s.evaluator == nil {
			continue
		}
		// runs come back i2t then t2i
		for i, d := range []split.Direction{split.I2T, split.T2I} {
			if i >= len(runs) {
				break
			}
			rep, err := s.evaluator.Evaluate(runs[i], qrels.Path(s.outDir, SearchSplit, d))
			if err != nil {
				return Result{}, fmt.Errorf("evaluate %s: %w", runs[i], err)
			}
			res.Reports = append(res.Reports, rep)
		}
	}
	return res, nil
}

type build struct {
	setting split.Setting
	split   split.Split
}

// builds lists the index builds: small per searched split, then base and large.
func builds() []build {
	return []build{
		{split.Small, split.Validation},
		{split.Small, split.Test},
		{split.Base, SearchSplit},
		{split.Large, SearchSplit},
	}
}
