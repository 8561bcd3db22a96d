package qrels

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/domain/qrel"
)

// Source provides the relevance judgments of every judged split.
type Source interface {
	Qrels(ctx context.Context) (*qrel.Set, error)
}
