package dataset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

var qrelColumns = []string{qrel.ColumnTextID, qrel.ColumnImageID, qrel.ColumnRel}

// LoadQrels reads the judged splits of a qrels release stored under
// LocalDir(dataDir, repo, <split>). Splits without files are skipped;
// finding none at all is ErrNoSplits.
func LoadQrels(ctx context.Context, dataDir, repo string) (*qrel.Set, error) {
	set := qrel.NewSet()
	for _, sp := range split.Judged() {
		t, err := OpenTable(LocalDir(dataDir, repo, sp.String()))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open qrels %s: %w", sp, err)
		}
		qs, err := readQrels(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("read qrels %s: %w", sp, err)
		}
		if err := set.Add(sp, qs...); err != nil {
			return nil, err
		}
	}
	if len(set.Splits()) == 0 {
		return nil, fmt.Errorf("qrels %s under %s: %w", repo, dataDir, domain.ErrNoSplits)
	}
	return set, nil
}

func readQrels(ctx context.Context, t *Table) ([]qrel.Qrel, error) {
	qs := make([]qrel.Qrel, 0, t.Len())
	err := t.Scan(ctx, ScanOptions{Columns: qrelColumns}, func(offset int, rec record.Record) error {
		q, err := toQrel(rec)
		if err != nil {
			return fmt.Errorf("row %d: %w", offset, err)
		}
		qs = append(qs, q)
		return nil
	})
	return qs, err
}

func toQrel(rec record.Record) (qrel.Qrel, error) {
	textID, err := rec.ID(qrel.ColumnTextID)
	if err != nil {
		return qrel.Qrel{}, err
	}
	imageID, err := rec.ID(qrel.ColumnImageID)
	if err != nil {
		return qrel.Qrel{}, err
	}
	q := qrel.Qrel{TextID: textID, ImageID: imageID, Rel: 1}
	if v, ok := rec.Get(qrel.ColumnRel); ok && strings.TrimSpace(v.String()) != "" {
		rel, err := strconv.Atoi(strings.TrimSpace(v.String()))
		if err != nil {
			return qrel.Qrel{}, fmt.Errorf("rel %q: %w", v.String(), err)
		}
		q.Rel = rel
	}
	return q, nil
}
