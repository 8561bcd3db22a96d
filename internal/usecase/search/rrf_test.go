package search

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain/run"
)

func ranking(ids ...string) []run.Entry {
	out := make([]run.Entry, len(ids))
	for i, id := range ids {
		out[i] = run.Entry{DocID: id, Rank: i + 1}
	}
	return out
}

func TestFuseRRF_DisjointLists(t *testing.T) {
	hits := fuseRRF(0, ranking("a", "b"), ranking("c", "d"))
	if len(hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(hits))
	}
	// equal scores at equal ranks are ordered by docid
	want := []string{"a", "c", "b", "d"}
	for i, h := range hits {
		if h.DocID != want[i] {
			t.Errorf("hits[%d] = %s, want %s", i, h.DocID, want[i])
		}
	}
}

func TestFuseRRF_OverlappingLists(t *testing.T) {
	hits := fuseRRF(0, ranking("a", "b", "c"), ranking("b", "d", "a"))
	if len(hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(hits))
	}

	// "b": 1/62 + 1/61, "a": 1/61 + 1/63
	if hits[0].DocID != "b" || hits[1].DocID != "a" {
		t.Errorf("top = %s, %s, want b, a", hits[0].DocID, hits[1].DocID)
	}
	expected := 1.0/62 + 1.0/61
	if math.Abs(hits[0].Score-expected) > 1e-12 {
		t.Errorf("score = %f, want %f", hits[0].Score, expected)
	}
}

func TestFuseRRF_CustomK(t *testing.T) {
	hits := fuseRRF(1, ranking("a"))
	if hits[0].Score != 0.5 {
		t.Errorf("score = %f, want 0.5", hits[0].Score)
	}
}

func TestFuse(t *testing.T) {
	dir := t.TempDir()
	lexical := filepath.Join(dir, "lexical.trec")
	dense := filepath.Join(dir, "dense.trec")
	// rank column decides, not file order
	writeFile(t, lexical, "q2 Q0 x 1 9.0 bm25\nq1 Q0 b 2 1.0 bm25\nq1 Q0 a 1 5.0 bm25\n")
	writeFile(t, dense, "q1 Q0 b 1 0.9 clip\nq1 Q0 c 2 0.8 clip\n")

	out := filepath.Join(dir, "runs", "fused.trec")
	svc := New(nil, nil, Config{Tag: "rrf"}, zap.NewNop())
	err := svc.Fuse(context.Background(), FuseRequest{Runs: []string{lexical, dense}, Output: out, Hits: 2})
	if err != nil {
		t.Fatalf("Fuse: %v", err)
	}

	got := readLines(t, out)
	want := []string{
		"q1 Q0 b 1 0.032522 rrf",
		"q1 Q0 a 2 0.016393 rrf",
		"q2 Q0 x 1 0.016393 rrf",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fused = %v, want %v", got, want)
	}
}

func TestFuse_NeedsTwoRuns(t *testing.T) {
	svc := New(nil, nil, Config{}, zap.NewNop())
	if err := svc.Fuse(context.Background(), FuseRequest{Runs: []string{"one"}}); err == nil {
		t.Error("expected error")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
