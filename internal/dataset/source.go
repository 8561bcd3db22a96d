package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// CorpusSplit is the only split of the Images and Texts releases.
const CorpusSplit = "train"

// Identifier columns of the corpus tables.
const (
	ImageIDColumn = "image_id"
	TextIDColumn  = "text_id"
)

// OpenCorpus opens the corpus table of repo stored under dataDir.
func OpenCorpus(dataDir, repo string) (*Table, error) {
	t, err := OpenTable(LocalDir(dataDir, repo, CorpusSplit))
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", repo, err)
	}
	return t, nil
}

// QrelsSource loads a qrels release on first use and keeps it.
type QrelsSource struct {
	dataDir string
	repo    string

	once sync.Once
	set  *qrel.Set
	err  error
}

// NewQrelsSource creates a lazy qrels loader.
func NewQrelsSource(dataDir, repo string) *QrelsSource {
	return &QrelsSource{dataDir: dataDir, repo: repo}
}

// Qrels returns the judgments of every judged split found on disk.
func (s *QrelsSource) Qrels(ctx context.Context) (*qrel.Set, error) {
	s.once.Do(func() {
		s.set, s.err = LoadQrels(ctx, s.dataDir, s.repo)
	})
	return s.set, s.err
}

// Select returns the rows of split sp (every row when sp is empty) cut to
// shard shardID of shardNum.
func (a *Atomic) Select(sp split.Split, shardID, shardNum int) (View, error) {
	v := a.All()
	if sp != "" {
		var err error
		if v, err = a.Split(sp); err != nil {
			return View{}, err
		}
	}
	return v.Shard(shardID, shardNum)
}
