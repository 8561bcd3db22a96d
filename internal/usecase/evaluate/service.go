// Package evaluate scores trec runs against qrels.
package evaluate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/run"
	"github.com/kailas-cloud/crossret/internal/repository/trec"
)

// Config holds metric cutoffs.
type Config struct {
	NDCGAt   int
	MRRAt    int
	RecallAt int
	// Complete averages over every judged query; queries missing from the
	// run score 0. Otherwise only judged queries present in the run count.
	Complete bool
}

// Report is the result of one evaluation.
type Report struct {
	Run      string  `json:"run"`
	Qrels    string  `json:"qrels"`
	Queries  int     `json:"queries"`
	Missing  int     `json:"missing"`
	NDCGAt   int     `json:"ndcg_cutoff"`
	NDCG     float64 `json:"ndcg"`
	MRRAt    int     `json:"mrr_cutoff"`
	MRR      float64 `json:"mrr"`
	RecallAt int     `json:"recall_cutoff"`
	Recall   float64 `json:"recall"`
}

// Service evaluates runs.
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// New creates an evaluation service. Zero cutoffs default to 10/10/1000.
func New(cfg Config, logger *zap.Logger) *Service {
	if cfg.NDCGAt <= 0 {
		cfg.NDCGAt = 10
	}
	if cfg.MRRAt <= 0 {
		cfg.MRRAt = 10
	}
	if cfg.RecallAt <= 0 {
		cfg.RecallAt = 1000
	}
	return &Service{cfg: cfg, logger: logger}
}

// Evaluate scores the run file against the qrels file.
func (s *Service) Evaluate(runPath, qrelsPath string) (Report, error) {
	qrels, err := trec.ReadQrels(qrelsPath)
	if err != nil {
		return Report{}, fmt.Errorf("read qrels: %w", err)
	}
	entries, err := trec.ReadRun(runPath)
	if err != nil {
		return Report{}, fmt.Errorf("read run: %w", err)
	}

	rep := Report{
		Run:      runPath,
		Qrels:    qrelsPath,
		NDCGAt:   s.cfg.NDCGAt,
		MRRAt:    s.cfg.MRRAt,
		RecallAt: s.cfg.RecallAt,
	}

	qids := make([]string, 0, len(qrels))
	for qid, rels := range qrels {
		if judged(rels) {
			qids = append(qids, qid)
		}
	}
	sort.Strings(qids)

	for _, qid := range qids {
		rels := qrels[qid]
		e, ok := entries[qid]
		if !ok {
			rep.Missing++
			if !s.cfg.Complete {
				continue
			}
		}
		ranked := rankedDocs(e)
		rep.Queries++
		rep.NDCG += NDCG(ranked, rels, s.cfg.NDCGAt)
		rep.MRR += MRR(ranked, rels, s.cfg.MRRAt)
		rep.Recall += Recall(ranked, rels, s.cfg.RecallAt)
	}
	if rep.Queries == 0 {
		return rep, fmt.Errorf("no judged queries in %s: %w", runPath, domain.ErrNotFound)
	}
	n := float64(rep.Queries)
	rep.NDCG /= n
	rep.MRR /= n
	rep.Recall /= n

	s.logger.Info("Evaluation",
		zap.String("run", runPath),
		zap.Int("queries", rep.Queries),
		zap.Int("missing", rep.Missing),
		zap.Float64(fmt.Sprintf("ndcg@%d", rep.NDCGAt), rep.NDCG),
		zap.Float64(fmt.Sprintf("mrr@%d", rep.MRRAt), rep.MRR),
		zap.Float64(fmt.Sprintf("recall@%d", rep.RecallAt), rep.Recall),
	)
	return rep, nil
}

// WriteReport stores reports as indented JSON.
func WriteReport(path string, reports []Report) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func judged(rels map[string]int) bool {
	for _, r := range rels {
		if r > 0 {
			return true
		}
	}
	return false
}

// rankedDocs orders a query's entries the way trec_eval does: the rank column
// is ignored, scores descend and ties fall to the greater docid.
func rankedDocs(entries []run.Entry) []string {
	sorted := make([]run.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].DocID > sorted[j].DocID
	})
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.DocID
	}
	return out
}
