// Package qrels writes projected trec qrel files for both retrieval directions.
package qrels

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/repository/trec"
)

// Dir is the qrels directory under the output root.
const Dir = "qrels"

// Path is the qrels file of a split and direction, e.g.
// qrels/validation.qrels.t2i.projected.trec.
func Path(outDir string, sp split.Split, d split.Direction) string {
	return filepath.Join(outDir, Dir, fmt.Sprintf("%s.qrels.%s.projected.trec", sp, d))
}

// Service writes qrel files.
type Service struct {
	source Source
	logger *zap.Logger
}

// New creates a qrels service.
func New(source Source, logger *zap.Logger) *Service {
	return &Service{source: source, logger: logger}
}

// Write writes the t2i and i2t qrels of each split under outDir/qrels and
// returns the written paths. Only judged splits are accepted.
func (s *Service) Write(ctx context.Context, outDir string, splits []split.Split) ([]string, error) {
	set, err := s.source.Qrels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load qrels: %w", err)
	}

	var paths []string
	for _, sp := range splits {
		if !sp.IsJudged() {
			return nil, fmt.Errorf("%w: %q has no judgments", domain.ErrInvalidSplit, sp)
		}
		qs := set.Get(sp)
		if len(qs) == 0 {
			return nil, fmt.Errorf("qrels %s: %w", sp, domain.ErrNotFound)
		}
		for _, d := range split.Directions() {
			path := Path(outDir, sp, d)
			if err := trec.WriteQrels(path, orient(qs, d)); err != nil {
				return nil, fmt.Errorf("write qrels %s %s: %w", sp, d, err)
			}
			paths = append(paths, path)
		}
		s.logger.Info("Qrels written",
			zap.String("split", sp.String()),
			zap.Int("judgments", len(qs)),
		)
	}
	return paths, nil
}

func orient(qs []qrel.Qrel, d split.Direction) []qrel.Judgment {
	out := make([]qrel.Judgment, len(qs))
	for i, q := range qs {
		out[i] = q.Orient(d)
	}
	return out
}
