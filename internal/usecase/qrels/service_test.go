package qrels

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

type mockSource struct {
	set *qrel.Set
	err error
}

func (m *mockSource) Qrels(context.Context) (*qrel.Set, error) {
	return m.set, m.err
}

func testSet() *qrel.Set {
	s := qrel.NewSet()
	_ = s.Add(split.Validation,
		qrel.Qrel{TextID: "t1", ImageID: "i1", Rel: 1},
		qrel.Qrel{TextID: "t2", ImageID: "i9", Rel: 2},
	)
	_ = s.Add(split.Test, qrel.Qrel{TextID: "t3", ImageID: "i3", Rel: 1})
	return s
}

func TestWrite(t *testing.T) {
	out := t.TempDir()
	svc := New(&mockSource{set: testSet()}, zap.NewNop())

	paths, err := svc.Write(context.Background(), out, []split.Split{split.Validation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 files, got %v", paths)
	}

	t2i, err := os.ReadFile(filepath.Join(out, "qrels", "validation.qrels.t2i.projected.trec"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "t1 Q0 i1 1\nt2 Q0 i9 2\n"; string(t2i) != want {
		t.Fatalf("t2i: expected %q, got %q", want, t2i)
	}

	i2t, err := os.ReadFile(filepath.Join(out, "qrels", "validation.qrels.i2t.projected.trec"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "i1 Q0 t1 1\ni9 Q0 t2 2\n"; string(i2t) != want {
		t.Fatalf("i2t: expected %q, got %q", want, i2t)
	}
}

func TestWrite_Errors(t *testing.T) {
	srcErr := errors.New("boom")
	tests := []struct {
		name   string
		source *mockSource
		splits []split.Split
		want   error
	}{
		{"source error", &mockSource{err: srcErr}, []split.Split{split.Test}, srcErr},
		{"other split", &mockSource{set: testSet()}, []split.Split{split.Other}, domain.ErrInvalidSplit},
		{"missing split", &mockSource{set: testSet()}, []split.Split{split.Train}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(tt.source, zap.NewNop())
			_, err := svc.Write(context.Background(), t.TempDir(), tt.splits)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
