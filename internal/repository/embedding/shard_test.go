package embedding

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/npy"
)

func TestShardSuffix(t *testing.T) {
	tests := []struct {
		id, num int
		want    string
	}{
		{0, 1, "0-of-1"},
		{3, 9, "3-of-9"},
		{3, 10, "03-of-10"},
		{42, 128, "042-of-128"},
	}
	for _, tt := range tests {
		if got := ShardSuffix(tt.id, tt.num); got != tt.want {
			t.Errorf("ShardSuffix(%d, %d) = %q, want %q", tt.id, tt.num, got, tt.want)
		}
	}
}

func TestWriter_NothingBeforeFlush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "text", "test")
	w := NewWriter(dir, 0, 1, npy.Float32, "text")
	if err := w.Add([]string{"a"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected nothing on disk before Flush")
	}
}

func TestWriter_DimMismatch(t *testing.T) {
	w := NewWriter(t.TempDir(), 0, 1, npy.Float32, "text")
	if err := w.Add([]string{"a"}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	err := w.Add([]string{"b"}, [][]float32{{1, 0, 0}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if err := w.Add([]string{"c", "d"}, [][]float32{{1, 0}}); !errors.Is(err, domain.ErrShardMismatch) {
		t.Fatalf("expected ErrShardMismatch, got %v", err)
	}
}

func TestWriteLoad_ConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()

	shards := []struct {
		ids  []string
		vecs [][]float32
	}{
		{[]string{"a", "b"}, [][]float32{{1, 0, 0}, {0, 1, 0}}},
		{[]string{"c"}, [][]float32{{0, 0, 1}}},
		{[]string{"d", "e"}, [][]float32{{0.5, 0.5, 0}, {0, 0.25, 0.75}}},
	}
	// write out of order, read back by file name
	for _, i := range []int{2, 0, 1} {
		w := NewWriter(dir, i, len(shards), npy.Float32, "image")
		if err := w.Add(shards[i].ids, shards[i].vecs); err != nil {
			t.Fatal(err)
		}
		if _, _, err := w.Flush(); err != nil {
			t.Fatalf("flush shard %d: %v", i, err)
		}
	}

	set, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"a", "b", "c", "d", "e"}; !reflect.DeepEqual(set.IDs, want) {
		t.Fatalf("expected ids %v, got %v", want, set.IDs)
	}
	if set.Len() != 5 || set.Dim() != 3 || set.Vectors.Rows != 5 {
		t.Fatalf("unexpected shape: len=%d dim=%d rows=%d", set.Len(), set.Dim(), set.Vectors.Rows)
	}
	if got := set.Vector(4); !reflect.DeepEqual(got, []float32{0, 0.25, 0.75}) {
		t.Fatalf("unexpected row 4: %v", got)
	}
}

func TestWriteLoad_Float16(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0, 1, npy.Float16, "text")
	if err := w.Add([]string{"x"}, [][]float32{{0.1, -0.7}}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	set, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []float32{0.1, -0.7} {
		if got := set.Vector(0)[i]; math.Abs(float64(got-want)) > 1e-3 {
			t.Fatalf("component %d: expected ~%v, got %v", i, want, got)
		}
	}
}

func TestLoad_CountMismatch(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 0, 1, npy.Float32, "text")
	if err := w.Add([]string{"a", "b"}, [][]float32{{1}, {2}}); err != nil {
		t.Fatal(err)
	}
	idsPath, _, err := w.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(idsPath, []byte("a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); !errors.Is(err, domain.ErrShardMismatch) {
		t.Fatalf("expected ErrShardMismatch, got %v", err)
	}
}

func TestLoad_Empty(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteIDs_FailureRemovesTemp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.0-of-1.txt")
	if err := writeIDs(path, []string{"ok", "bad\nid"}); err == nil {
		t.Fatal("expected error for id with a line break")
	}
	for _, p := range []string{path, path + ".tmp"} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be absent, stat err = %v", filepath.Base(p), err)
		}
	}

	if err := writeIDs(path, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("unexpected ids file %q", data)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file left after success: %v", err)
	}
}
