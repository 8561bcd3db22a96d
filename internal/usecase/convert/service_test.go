package convert

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// --- Mocks ---

type mockQrels struct {
	set *qrel.Set
	err error
}

func (m *mockQrels) Qrels(context.Context) (*qrel.Set, error) { return m.set, m.err }

type mockRows struct {
	rows     []record.Record
	lastOpts dataset.ScanOptions
	err      error
}

func (m *mockRows) Scan(_ context.Context, opts dataset.ScanOptions, fn dataset.RowFunc) error {
	m.lastOpts = opts
	if m.err != nil {
		return m.err
	}
	for i, r := range m.rows {
		if err := fn(i, r); err != nil {
			return err
		}
	}
	return nil
}

func testQrels() *qrel.Set {
	s := qrel.NewSet()
	_ = s.Add(split.Train, qrel.Qrel{TextID: "t1", ImageID: "i1", Rel: 1})
	_ = s.Add(split.Validation, qrel.Qrel{TextID: "t2", ImageID: "i2", Rel: 1})
	return s
}

func imageRows() []record.Record {
	mk := func(id string) record.Record {
		return record.New(
			record.Field{Name: "image_id", Value: record.Scalar(id)},
			record.Field{Name: "caption_reference_description", Value: record.List("A “red” cat", "Eine Katze")},
			record.Field{Name: "language", Value: record.List("en", "de")},
		)
	}
	return []record.Record{mk("i1"), mk("i2"), mk("i3")}
}

func textRows() []record.Record {
	mk := func(id, title string) record.Record {
		return record.New(
			record.Field{Name: "text_id", Value: record.Scalar(id)},
			record.Field{Name: "page_title", Value: record.Scalar(title)},
			record.Field{Name: "hierachy", Value: record.List("Animals", "Cats")},
		)
	}
	return []record.Record{mk("t1", "<b>Cat</b>"), mk("t2", "Dog"), mk("t3", "one two three four")}
}

type line struct {
	ID       string `json:"id"`
	Contents string `json:"contents"`
}

func readLines(t *testing.T, path string) []line {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []line
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, l)
	}
	return out
}

func newService(t *testing.T, cfg Config) (*Service, *mockRows, *mockRows) {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	images := &mockRows{rows: imageRows()}
	texts := &mockRows{rows: textRows()}
	return New(&mockQrels{set: testQrels()}, images, texts, cfg, zap.NewNop()), images, texts
}

// --- Tests ---

func TestConvert_ImageCaption(t *testing.T) {
	svc, images, _ := newService(t, Config{})

	paths, err := svc.Convert(context.Background(), split.Train, FieldImageCaption)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "train.image-caption.jsonl" {
		t.Fatalf("unexpected paths: %v", paths)
	}
	if !reflect.DeepEqual(images.lastOpts.Drop, []string{"image", "image_url"}) {
		t.Fatalf("unexpected dropped columns: %v", images.lastOpts.Drop)
	}

	got := readLines(t, paths[0])
	want := []line{{ID: "i1", Contents: `A "red" cat`}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestConvert_TextOther(t *testing.T) {
	svc, _, texts := newService(t, Config{MaxTokens: 3})

	paths, err := svc.Convert(context.Background(), split.Other, FieldText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(paths[0]) != "other.text.jsonl" {
		t.Fatalf("unexpected paths: %v", paths)
	}
	if !reflect.DeepEqual(texts.lastOpts.Drop, []string{"media", "category", "source_id", "page_url"}) {
		t.Fatalf("unexpected dropped columns: %v", texts.lastOpts.Drop)
	}

	got := readLines(t, paths[0])
	want := []line{{ID: "t3", Contents: "one two three"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestConvert_TextJudged(t *testing.T) {
	svc, _, _ := newService(t, Config{})

	paths, err := svc.Convert(context.Background(), split.Train, FieldText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := readLines(t, paths[0])
	want := []line{{ID: "t1", Contents: "Cat Animals Cats"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestConvert_Sharded(t *testing.T) {
	svc, _, _ := newService(t, Config{LinesPerPart: 1})

	paths, err := svc.Convert(context.Background(), split.Other, FieldImageCaption)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// one row (i3) with one line per part still fits a single file
	if len(paths) != 1 {
		t.Fatalf("expected 1 file, got %v", paths)
	}
}

func TestConvert_Errors(t *testing.T) {
	scanErr := errors.New("disk")
	qErr := errors.New("qrels")

	t.Run("qrels", func(t *testing.T) {
		svc := New(&mockQrels{err: qErr}, &mockRows{}, &mockRows{}, Config{OutputDir: t.TempDir()}, zap.NewNop())
		if _, err := svc.Convert(context.Background(), split.Train, FieldText); !errors.Is(err, qErr) {
			t.Fatalf("expected qrels error, got %v", err)
		}
	})
	t.Run("scan", func(t *testing.T) {
		svc := New(&mockQrels{set: testQrels()}, &mockRows{err: scanErr}, &mockRows{}, Config{OutputDir: t.TempDir()}, zap.NewNop())
		if _, err := svc.Convert(context.Background(), split.Train, FieldImageCaption); !errors.Is(err, scanErr) {
			t.Fatalf("expected scan error, got %v", err)
		}
	})
	t.Run("split", func(t *testing.T) {
		svc, _, _ := newService(t, Config{})
		if _, err := svc.Convert(context.Background(), split.Split("dev"), FieldText); !errors.Is(err, domain.ErrInvalidSplit) {
			t.Fatalf("expected ErrInvalidSplit, got %v", err)
		}
	})
	t.Run("field", func(t *testing.T) {
		svc, _, _ := newService(t, Config{})
		if _, err := svc.Convert(context.Background(), split.Train, Field("audio")); err == nil ||
			!strings.Contains(err.Error(), "audio") {
			t.Fatalf("expected field error, got %v", err)
		}
	})
}

func TestParseField(t *testing.T) {
	for _, f := range Fields() {
		if got, err := ParseField(string(f)); err != nil || got != f {
			t.Fatalf("ParseField(%q) = %q, %v", f, got, err)
		}
	}
	if _, err := ParseField("caption"); err == nil {
		t.Fatal("expected error")
	}
}
