// Package collection stores flattened documents as JSON-lines collections:
// one {"id", "contents"} object per line.
package collection

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/document"
	"github.com/kailas-cloud/crossret/internal/metrics"
)

// DefaultField is the JSON key carrying document text.
const DefaultField = "contents"

// DefaultLinesPerPart is the line count above which a collection is split into parts.
const DefaultLinesPerPart = 1_000_000

const maxLineBytes = 64 << 20

// line is the stored form of a document.
type line struct {
	ID       string `json:"id"`
	Contents string `json:"contents"`
}

// SaveMaybeSharded writes docs to path, or to n = len/linesPerPart + 1
// contiguous parts "<stem>.part-NN.jsonl" next to it when docs exceed
// linesPerPart. Returns the written files.
func SaveMaybeSharded(docs []document.Document, path string, linesPerPart int) ([]string, error) {
	if linesPerPart <= 0 {
		linesPerPart = DefaultLinesPerPart
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if len(docs) <= linesPerPart {
		if err := Save(docs, path); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	n := len(docs)/linesPerPart + 1
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start, end := partBounds(len(docs), i, n)
		part := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.part-%02d.jsonl", stem, i))
		if err := Save(docs[start:end], part); err != nil {
			return nil, err
		}
		paths = append(paths, part)
	}
	return paths, nil
}

func partBounds(n, index, count int) (int, int) {
	div, mod := n/count, n%count
	start := div*index + min(index, mod)
	end := start + div
	if index < mod {
		end++
	}
	return start, end
}

// Save writes docs to path as JSON lines through a temp file.
func Save(docs []document.Document, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(filepath.Clean(tmp))
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() { _ = os.Remove(tmp) }()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, d := range docs {
		if err := enc.Encode(line{ID: d.ID(), Contents: d.Contents()}); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode %s: %w", d.ID(), err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	metrics.DocumentsWrittenTotal.WithLabelValues(filepath.Base(filepath.Dir(path))).Add(float64(len(docs)))
	return nil
}

// Files lists the collection files in dir whose name starts with prefix,
// sorted by name. Symlinks are followed.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Reader streams documents out of JSONL files.
type Reader struct {
	field string
}

// NewReader reads the text of field, DefaultField when empty.
func NewReader(field string) *Reader {
	if field == "" {
		field = DefaultField
	}
	return &Reader{field: field}
}

// Read calls fn for every line of every file in order.
func (r *Reader) Read(ctx context.Context, paths []string, fn func(document.Document) error) error {
	for _, p := range paths {
		if err := r.readFile(ctx, p, fn); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll collects every document of paths.
func (r *Reader) ReadAll(ctx context.Context, paths []string) ([]document.Document, error) {
	var docs []document.Document
	err := r.Read(ctx, paths, func(d document.Document) error {
		docs = append(docs, d)
		return nil
	})
	return docs, err
}

func (r *Reader) readFile(ctx context.Context, path string, fn func(document.Document) error) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		if n%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		doc, err := r.decode(raw)
		if err != nil {
			return &domain.LineError{Path: path, Line: n, Err: err}
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func (r *Reader) decode(raw []byte) (document.Document, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return document.Document{}, fmt.Errorf("%w: %v", domain.ErrMalformedLine, err)
	}
	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return document.Document{}, fmt.Errorf("%w: missing id", domain.ErrMalformedLine)
	}
	text, ok := obj[r.field].(string)
	if !ok {
		return document.Document{}, fmt.Errorf("%w: missing %q", domain.ErrMalformedLine, r.field)
	}
	return document.Reconstruct(id, text), nil
}
