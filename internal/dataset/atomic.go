package dataset

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/repository/rowindex"
)

// IndexCache builds or loads the id index and split dictionary of a table.
type IndexCache interface {
	RowIndex(ctx context.Context, src rowindex.IDScanner, column string) (map[string]int, error)
	Splits(column string, index map[string]int, qrels *qrel.Set) (map[split.Split][]int, error)
}

// Atomic is a corpus table addressable by id and by split.
type Atomic struct {
	table    *Table
	idColumn string
	index    map[string]int
	splits   map[split.Split][]int
}

// OpenAtomic wires a table to its cached indexes. With nil qrels the dataset
// has no splits and Split fails with ErrNoSplits.
func OpenAtomic(
	ctx context.Context, table *Table, idColumn string, cache IndexCache, qrels *qrel.Set,
) (*Atomic, error) {
	index, err := cache.RowIndex(ctx, table, idColumn)
	if err != nil {
		return nil, fmt.Errorf("row index %s: %w", idColumn, err)
	}
	a := &Atomic{table: table, idColumn: idColumn, index: index}
	if qrels == nil {
		return a, nil
	}
	a.splits, err = cache.Splits(idColumn, index, qrels)
	if err != nil {
		return nil, fmt.Errorf("split dictionary %s: %w", idColumn, err)
	}
	return a, nil
}

// Table returns the backing table.
func (a *Atomic) Table() *Table { return a.table }

// IDColumn is the identifier column name.
func (a *Atomic) IDColumn() string { return a.idColumn }

// Len is the number of rows.
func (a *Atomic) Len() int { return a.table.Len() }

// HasSplits reports whether the dataset was opened with qrels.
func (a *Atomic) HasSplits() bool { return a.splits != nil }

// GetByID reads the record with the given id.
func (a *Atomic) GetByID(ctx context.Context, id string) (record.Record, error) {
	off, ok := a.index[id]
	if !ok {
		return record.Record{}, fmt.Errorf("%s %q: %w", a.idColumn, id, domain.ErrNotFound)
	}
	return a.table.Row(ctx, off)
}

// All is a view over every row.
func (a *Atomic) All() View {
	return View{table: a.table, from: 0, to: a.table.Len(), dense: true}
}

// Split is a view over the rows of one split. Other is every row that no
// judged split holds.
func (a *Atomic) Split(sp split.Split) (View, error) {
	if a.splits == nil {
		return View{}, domain.ErrNoSplits
	}
	if sp == split.Other {
		return View{table: a.table, offsets: a.complement()}, nil
	}
	if !sp.IsJudged() {
		return View{}, fmt.Errorf("%w: %q", domain.ErrInvalidSplit, sp)
	}
	return View{table: a.table, offsets: a.splits[sp]}, nil
}

func (a *Atomic) complement() []int {
	taken := make([]bool, a.table.Len())
	for _, offsets := range a.splits {
		for _, off := range offsets {
			if off >= 0 && off < len(taken) {
				taken[off] = true
			}
		}
	}
	var out []int
	for off, t := range taken {
		if !t {
			out = append(out, off)
		}
	}
	return out
}

// View is an ordered subset of table rows: either a contiguous range or an
// explicit list of offsets.
type View struct {
	table   *Table
	offsets []int
	from    int
	to      int
	dense   bool
}

// Len is the number of rows in the view.
func (v View) Len() int {
	if v.dense {
		return v.to - v.from
	}
	return len(v.offsets)
}

// Offsets returns the row offsets of the view.
func (v View) Offsets() []int {
	if !v.dense {
		out := make([]int, len(v.offsets))
		copy(out, v.offsets)
		return out
	}
	out := make([]int, 0, v.to-v.from)
	for off := v.from; off < v.to; off++ {
		out = append(out, off)
	}
	return out
}

// Shard returns the index-th of count contiguous, disjoint parts. The first
// len%count parts are one row longer.
func (v View) Shard(index, count int) (View, error) {
	if count <= 0 || index < 0 || index >= count {
		return View{}, fmt.Errorf("%w: shard %d of %d", domain.ErrInvalidShard, index, count)
	}
	start, end := ShardBounds(v.Len(), index, count)
	if v.dense {
		return View{table: v.table, from: v.from + start, to: v.from + end, dense: true}, nil
	}
	return View{table: v.table, offsets: v.offsets[start:end]}, nil
}

// ShardBounds returns [start, end) of the index-th of count contiguous parts of n.
func ShardBounds(n, index, count int) (int, int) {
	div, mod := n/count, n%count
	start := div*index + min(index, mod)
	size := div
	if index < mod {
		size++
	}
	return start, start + size
}

// Scan streams the rows of the view in order. Range fields of opts are ignored.
func (v View) Scan(ctx context.Context, opts ScanOptions, fn RowFunc) error {
	if v.dense {
		if v.from >= v.to {
			return nil
		}
		opts.From, opts.To = v.from, v.to
		return v.table.Scan(ctx, opts, fn)
	}
	return v.table.Rows(ctx, v.offsets, opts, fn)
}
