package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain/run"
	"github.com/kailas-cloud/crossret/internal/repository/trec"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges rankings via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) for each ranking where d appears.
// Rankings are ordered best first; the position in the slice is the rank.
func fuseRRF(k int, rankings ...[]run.Entry) []run.Hit {
	if k <= 0 {
		k = rrfK
	}
	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for rank, e := range ranking {
			scores[e.DocID] += 1.0 / float64(k+rank+1)
		}
	}

	hits := make([]run.Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, run.Hit{DocID: id, Score: s})
	}
	return run.TieBreak(hits)
}

// FuseRequest describes a run fusion.
type FuseRequest struct {
	Runs   []string
	Output string
	Hits   int
	K      int // 0 uses 60
}

// Fuse combines run files (e.g. a lexical and a dense run of the same
// topics) into one run ranked by RRF score. Queries are written in id order.
func (s *Service) Fuse(_ context.Context, req FuseRequest) error {
	if len(req.Runs) < 2 {
		return fmt.Errorf("fusion needs at least two runs, got %d", len(req.Runs))
	}

	perQuery := make(map[string][][]run.Entry)
	for _, path := range req.Runs {
		r, err := trec.ReadRun(path)
		if err != nil {
			return fmt.Errorf("read run: %w", err)
		}
		for qid, entries := range r {
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
			perQuery[qid] = append(perQuery[qid], entries)
		}
	}

	qids := make([]string, 0, len(perQuery))
	for qid := range perQuery {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	results := make([][]run.Hit, len(qids))
	for i, qid := range qids {
		results[i] = fuseRRF(req.K, perQuery[qid]...)
	}
	if err := writeRun(req.Output, qids, results, req.Hits, s.cfg.Tag); err != nil {
		return err
	}

	s.logger.Info("Fused runs",
		zap.Strings("runs", req.Runs),
		zap.Int("queries", len(qids)),
		zap.String("output", req.Output),
	)
	return nil
}
