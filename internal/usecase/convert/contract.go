package convert

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
)

// QrelsSource provides the relevance judgments used as id filters.
type QrelsSource interface {
	Qrels(ctx context.Context) (*qrel.Set, error)
}

// RowSource streams the rows of a corpus table.
type RowSource interface {
	Scan(ctx context.Context, opts dataset.ScanOptions, fn dataset.RowFunc) error
}
