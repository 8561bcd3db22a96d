package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

type qrelRow struct {
	TextID  string `parquet:"text_id"`
	Q0      string `parquet:"Q0"`
	ImageID string `parquet:"image_id"`
	Rel     int64  `parquet:"rel"`
}

func TestLoadQrels(t *testing.T) {
	dataDir := t.TempDir()
	repo := "org/qrels"

	trainDir := LocalDir(dataDir, repo, "train")
	testDir := LocalDir(dataDir, repo, "test")
	for _, d := range []string{trainDir, testDir} {
		if err := mkdir(d); err != nil {
			t.Fatal(err)
		}
	}
	writeParquet(t, trainDir, "00000.parquet", []qrelRow{
		{TextID: "t1", Q0: "Q0", ImageID: "i1", Rel: 1},
		{TextID: "t2", Q0: "Q0", ImageID: "i2", Rel: 2},
	})
	writeParquet(t, testDir, "00000.parquet", []qrelRow{
		{TextID: "t3", Q0: "Q0", ImageID: "i3", Rel: 1},
	})

	set, err := LoadQrels(context.Background(), dataDir, repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Splits(); len(got) != 2 || got[0] != split.Train || got[1] != split.Test {
		t.Fatalf("expected [train test], got %v", got)
	}
	train := set.Get(split.Train)
	if len(train) != 2 || train[1] != (qrel.Qrel{TextID: "t2", ImageID: "i2", Rel: 2}) {
		t.Fatalf("unexpected train judgments: %+v", train)
	}
}

func TestLoadQrels_NoSplits(t *testing.T) {
	_, err := LoadQrels(context.Background(), t.TempDir(), "org/qrels")
	if !errors.Is(err, domain.ErrNoSplits) {
		t.Fatalf("expected ErrNoSplits, got %v", err)
	}
}
