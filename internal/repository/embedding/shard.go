// Package embedding stores encoder output as shards of paired files:
// ids.<n>-of-<m>.txt (one id per line) and embeddings.<n>-of-<m>.npy
// (one matrix row per id, same order).
package embedding

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/npy"
)

const (
	idsPrefix = "ids"
	vecPrefix = "embeddings"
)

// ShardSuffix formats "<n>-of-<m>" zero padded to the digit count of m.
func ShardSuffix(shardID, shardNum int) string {
	digits := 1
	if shardNum > 0 {
		digits = int(math.Log10(float64(shardNum))) + 1
	}
	return fmt.Sprintf("%0*d-of-%0*d", digits, shardID, digits, shardNum)
}

// ShardPaths returns the id and matrix file of a shard in dir.
func ShardPaths(dir string, shardID, shardNum int) (string, string) {
	suffix := ShardSuffix(shardID, shardNum)
	return filepath.Join(dir, idsPrefix+"."+suffix+".txt"),
		filepath.Join(dir, vecPrefix+"."+suffix+".npy")
}

// Writer accumulates one shard in memory. Nothing reaches disk before Flush.
type Writer struct {
	dir      string
	shardID  int
	shardNum int
	dtype    npy.DType
	label    string
	dim      int
	ids      []string
	rows     [][]float32
}

// NewWriter creates a writer for shard shardID of shardNum under dir.
// label tags the written-rows metric.
func NewWriter(dir string, shardID, shardNum int, dtype npy.DType, label string) *Writer {
	return &Writer{dir: dir, shardID: shardID, shardNum: shardNum, dtype: dtype, label: label}
}

// Add appends a batch. All vectors must share one dimension.
func (w *Writer) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", domain.ErrShardMismatch, len(ids), len(vectors))
	}
	for i, v := range vectors {
		if w.dim == 0 {
			w.dim = len(v)
		}
		if len(v) != w.dim {
			return fmt.Errorf("%w: %s has %d dims, want %d", domain.ErrVectorDimMismatch, ids[i], len(v), w.dim)
		}
	}
	w.ids = append(w.ids, ids...)
	w.rows = append(w.rows, vectors...)
	return nil
}

// Len is the number of buffered rows.
func (w *Writer) Len() int { return len(w.ids) }

// Flush writes the matrix and then the id file, each through a temp file.
func (w *Writer) Flush() (string, string, error) {
	idsPath, vecPath := ShardPaths(w.dir, w.shardID, w.shardNum)
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", "", fmt.Errorf("mkdir: %w", err)
	}

	m, err := npy.NewMatrix(w.rows, w.dim)
	if err != nil {
		return "", "", fmt.Errorf("stack vectors: %w", err)
	}
	if err := npy.WriteFile(vecPath, m, w.dtype); err != nil {
		return "", "", fmt.Errorf("write %s: %w", filepath.Base(vecPath), err)
	}
	if err := writeIDs(idsPath, w.ids); err != nil {
		return "", "", err
	}
	metrics.EmbeddingsWrittenTotal.WithLabelValues(w.label).Add(float64(len(w.ids)))
	return idsPath, vecPath, nil
}

func writeIDs(path string, ids []string) error {
	tmp := path + ".tmp"
	f, err := os.Create(filepath.Clean(tmp))
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	// no-op once renamed
	defer func() { _ = os.Remove(tmp) }()
	bw := bufio.NewWriter(f)
	for _, id := range ids {
		if strings.ContainsAny(id, "\r\n") {
			_ = f.Close()
			return fmt.Errorf("id %q contains a line break", id)
		}
		_, _ = bw.WriteString(id)
		_ = bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Set is every shard of a directory concatenated in file name order.
type Set struct {
	IDs     []string
	Vectors npy.Matrix
}

// Len is the number of embeddings.
func (s Set) Len() int { return len(s.IDs) }

// Dim is the vector dimension.
func (s Set) Dim() int { return s.Vectors.Cols }

// Vector returns row i.
func (s Set) Vector(i int) []float32 { return s.Vectors.Row(i) }

// Load reads all shards under dir. A shard whose id count differs from its
// matrix rows, or an id file without a matrix, is an error.
func Load(dir string) (Set, error) {
	vecFiles, err := filepath.Glob(filepath.Join(dir, vecPrefix+"*.npy"))
	if err != nil {
		return Set{}, fmt.Errorf("glob: %w", err)
	}
	idFiles, err := filepath.Glob(filepath.Join(dir, idsPrefix+"*.txt"))
	if err != nil {
		return Set{}, fmt.Errorf("glob: %w", err)
	}
	if len(vecFiles) == 0 {
		return Set{}, fmt.Errorf("no embedding shards in %s: %w", dir, domain.ErrNotFound)
	}
	if len(vecFiles) != len(idFiles) {
		return Set{}, fmt.Errorf("%w: %d matrices, %d id files in %s",
			domain.ErrShardMismatch, len(vecFiles), len(idFiles), dir)
	}
	sort.Strings(vecFiles)
	sort.Strings(idFiles)

	var out Set
	for i := range vecFiles {
		m, err := npy.ReadFile(vecFiles[i])
		if err != nil {
			return Set{}, fmt.Errorf("read %s: %w", filepath.Base(vecFiles[i]), err)
		}
		ids, err := readIDs(idFiles[i])
		if err != nil {
			return Set{}, err
		}
		if len(ids) != m.Rows {
			return Set{}, fmt.Errorf("%w: %s has %d ids, %s has %d rows", domain.ErrShardMismatch,
				filepath.Base(idFiles[i]), len(ids), filepath.Base(vecFiles[i]), m.Rows)
		}
		if out.Vectors.Cols != 0 && m.Rows > 0 && m.Cols != out.Vectors.Cols {
			return Set{}, fmt.Errorf("%w: %s has %d dims, want %d", domain.ErrVectorDimMismatch,
				filepath.Base(vecFiles[i]), m.Cols, out.Vectors.Cols)
		}
		if out.Vectors.Cols == 0 {
			out.Vectors.Cols = m.Cols
		}
		out.IDs = append(out.IDs, ids...)
		out.Vectors.Data = append(out.Vectors.Data, m.Data...)
		out.Vectors.Rows += m.Rows
	}
	return out, nil
}

func readIDs(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ids = append(ids, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return ids, nil
}
