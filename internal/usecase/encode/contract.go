package encode

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// Rows is an ordered selection of corpus rows.
type Rows interface {
	Len() int
	Scan(ctx context.Context, opts dataset.ScanOptions, fn dataset.RowFunc) error
}

// Corpus selects the rows of a split shard.
type Corpus interface {
	Select(sp split.Split, shardID, shardNum int) (Rows, error)
}

// Embedder vectorizes text or image data URLs.
type Embedder interface {
	Embed(ctx context.Context, input string) (domain.EmbeddingResult, error)
}

type atomicCorpus struct {
	a *dataset.Atomic
}

// FromAtomic adapts a dataset to Corpus.
func FromAtomic(a *dataset.Atomic) Corpus {
	return atomicCorpus{a: a}
}

func (c atomicCorpus) Select(sp split.Split, shardID, shardNum int) (Rows, error) {
	v, err := c.a.Select(sp, shardID, shardNum)
	if err != nil {
		return nil, err
	}
	return v, nil
}
