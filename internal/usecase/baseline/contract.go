package baseline

import (
	"context"

	"github.com/kailas-cloud/crossret/internal/domain/index"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/usecase/convert"
	"github.com/kailas-cloud/crossret/internal/usecase/evaluate"
	"github.com/kailas-cloud/crossret/internal/usecase/search"
)

// QrelsWriter projects the judgments of splits to trec files.
type QrelsWriter interface {
	Write(ctx context.Context, outDir string, splits []split.Split) ([]string, error)
}

// Converter writes the collection of one split and field.
type Converter interface {
	Convert(ctx context.Context, sp split.Split, f convert.Field) ([]string, error)
}

// Indexer builds the lexical indexes of a setting.
type Indexer interface {
	BuildLexical(ctx context.Context, st split.Setting, sp split.Split) ([]index.Handle, error)
}

// Searcher runs the lexical topics of a split.
type Searcher interface {
	SearchLexical(ctx context.Context, req search.LexicalRequest) ([]string, error)
}

// Evaluator scores a run file against a qrels file.
type Evaluator interface {
	Evaluate(runPath, qrelsPath string) (evaluate.Report, error)
}
