// Package trec reads and writes trec qrel and run files.
package trec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/run"
)

// Qrels maps query id → doc id → relevance.
type Qrels map[string]map[string]int

// Writer writes lines to path through a temp file renamed on Close.
type Writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	n    int
}

// Create opens a writer, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path + ".tmp"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &Writer{path: path, f: f, bw: bufio.NewWriter(f)}, nil
}

// WriteLine appends one line.
func (w *Writer) WriteLine(s string) error {
	w.n++
	if _, err := w.bw.WriteString(s); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// WriteEntries appends run entries.
func (w *Writer) WriteEntries(entries []run.Entry) error {
	for _, e := range entries {
		if err := w.WriteLine(e.String()); err != nil {
			return fmt.Errorf("write %s: %w", w.path, err)
		}
	}
	return nil
}

// Lines is the number of lines written so far.
func (w *Writer) Lines() int { return w.n }

// Close flushes and moves the file into place.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	return os.Rename(w.path+".tmp", w.path)
}

// Abort drops the partial file.
func (w *Writer) Abort() {
	_ = w.f.Close()
	_ = os.Remove(w.path + ".tmp")
}

// WriteQrels writes "qid Q0 docid rel" lines in the given order.
func WriteQrels(path string, judgments []qrel.Judgment) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, j := range judgments {
		if err := w.WriteLine(j.String()); err != nil {
			w.Abort()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return w.Close()
}

// ReadQrels parses a qrels file. Duplicate pairs keep the last relevance.
func ReadQrels(path string) (Qrels, error) {
	out := make(Qrels)
	err := scan(path, func(fields []string) error {
		if len(fields) != 4 {
			return fmt.Errorf("%w: expected 4 columns, got %d", domain.ErrMalformedLine, len(fields))
		}
		rel, err := strconv.Atoi(fields[3])
		if err != nil {
			return fmt.Errorf("%w: rel %q", domain.ErrMalformedLine, fields[3])
		}
		docs, ok := out[fields[0]]
		if !ok {
			docs = make(map[string]int)
			out[fields[0]] = docs
		}
		docs[fields[2]] = rel
		return nil
	})
	return out, err
}

// ReadRun parses a run file into entries per query, in file order.
func ReadRun(path string) (map[string][]run.Entry, error) {
	out := make(map[string][]run.Entry)
	err := scan(path, func(fields []string) error {
		e, err := run.Parse(strings.Join(fields, " "))
		if err != nil {
			return err
		}
		out[e.QueryID] = append(out[e.QueryID], e)
		return nil
	})
	return out, err
}

func scan(path string, fn func(fields []string) error) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if err := fn(fields); err != nil {
			return &domain.LineError{Path: path, Line: n, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
