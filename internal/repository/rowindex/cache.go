// Package rowindex persists the id → row offset index of a corpus table and
// the split → row offsets dictionary derived from relevance judgments.
//
// Both files are built on first access and loaded unconditionally afterwards.
// Nothing checks them for staleness; delete the cache dir after the
// underlying tables change.
package rowindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
)

// IDScanner streams the identifier column of a table.
type IDScanner interface {
	ScanIDs(ctx context.Context, column string, fn func(offset int, id string) error) error
}

// Cache stores index files under one directory.
type Cache struct {
	dir    string
	logger *zap.Logger
}

// New creates a cache rooted at dir.
func New(dir string, logger *zap.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

// ForTable creates the cache of one table under root. Texts and their inputs
// both key on text_id, so each table gets its own directory.
func ForTable(root, table string, logger *zap.Logger) *Cache {
	return New(filepath.Join(root, table), logger)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// RowIndexPath is the id index file of an id column.
func (c *Cache) RowIndexPath(column string) string {
	return filepath.Join(c.dir, column+".row-index.json")
}

// SplitPath is the split dictionary file of an id column.
func (c *Cache) SplitPath(column string) string {
	return filepath.Join(c.dir, column+".split.json")
}

// RowIndex loads the id → row offset map, scanning src once when the cache
// file does not exist yet. A repeated id keeps its first offset.
func (c *Cache) RowIndex(ctx context.Context, src IDScanner, column string) (map[string]int, error) {
	path := c.RowIndexPath(column)
	index := make(map[string]int)
	ok, err := load(path, &index)
	if err != nil {
		return nil, err
	}
	if ok {
		c.logger.Debug("Loaded row index", zap.String("path", path), zap.Int("ids", len(index)))
		return index, nil
	}

	done := logger.Timed(c.logger, "row-index", zap.String("column", column))
	dups := 0
	err = src.ScanIDs(ctx, column, func(offset int, id string) error {
		if _, seen := index[id]; seen {
			dups++
			return nil
		}
		index[id] = offset
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan ids: %w", err)
	}
	done()
	if dups > 0 {
		c.logger.Warn("Duplicate ids in table", zap.String("column", column), zap.Int("duplicates", dups))
	}

	if err := store(path, index); err != nil {
		return nil, err
	}
	c.logger.Info("Saved row index", zap.String("path", path), zap.Int("ids", len(index)))
	return index, nil
}

// Splits loads the split dictionary, building it from qrels when the cache
// file does not exist yet. Each row lands in at most one split: train wins
// over validation, validation over test. Offsets are sorted ascending.
func (c *Cache) Splits(
	column string, index map[string]int, qrels *qrel.Set,
) (map[split.Split][]int, error) {
	path := c.SplitPath(column)
	raw := make(map[string][]int)
	ok, err := load(path, &raw)
	if err != nil {
		return nil, err
	}
	if ok {
		out := make(map[split.Split][]int, len(raw))
		for name, offsets := range raw {
			sp, err := split.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			out[sp] = offsets
		}
		return out, nil
	}

	out, overlap := Build(column, index, qrels)
	if overlap > 0 {
		c.logger.Warn("Ids judged in several splits, kept in the first",
			zap.String("column", column),
			zap.Int("ids", overlap),
		)
	}

	for sp, offsets := range out {
		raw[sp.String()] = offsets
	}
	if err := store(path, raw); err != nil {
		return nil, err
	}
	c.logger.Info("Saved split dictionary", zap.String("path", path), zap.Int("splits", len(out)))
	return out, nil
}

// Build assigns the rows judged in qrels to splits. It returns the
// dictionary and the number of ids dropped from a later split because an
// earlier one already holds them. Ids missing from index are ignored.
func Build(column string, index map[string]int, qrels *qrel.Set) (map[split.Split][]int, int) {
	out := make(map[split.Split][]int)
	taken := make(map[int]struct{})
	overlap := 0
	for _, sp := range qrels.Splits() {
		offsets := []int{}
		for id := range qrels.IDs(column, sp) {
			off, ok := index[id]
			if !ok {
				continue
			}
			if _, dup := taken[off]; dup {
				overlap++
				continue
			}
			taken[off] = struct{}{}
			offsets = append(offsets, off)
		}
		sort.Ints(offsets)
		out[sp] = offsets
	}
	return out, overlap
}

func load(path string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// store writes JSON through a temp file in the same directory.
func store(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	defer func() { _ = os.Remove(tmp) }()
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
