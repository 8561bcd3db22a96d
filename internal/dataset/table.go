// Package dataset reads the corpus tables (parquet exports of the
// HuggingFace releases) as streams of records.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/metrics"
)

const readBatch = 1000

// Table is a read-only view over a directory of parquet files. Row offsets
// are global: they run across files in name order.
type Table struct {
	name   string
	files  []string
	starts []int // global offset of each file's first row
	total  int
}

// OpenTable scans dir for *.parquet files and records their row counts.
func OpenTable(dir string) (*Table, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, fmt.Errorf("glob parquet files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files found in %s: %w", dir, domain.ErrNotFound)
	}
	sort.Strings(files)

	t := &Table{name: filepath.Base(filepath.Dir(filepath.Clean(dir))), files: files}
	for _, path := range files {
		h, err := openParquet(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		t.starts = append(t.starts, t.total)
		t.total += int(h.pf.NumRows())
		h.Close()
	}
	return t, nil
}

// Len is the total number of rows.
func (t *Table) Len() int { return t.total }

// Name labels the table in logs and metrics.
func (t *Table) Name() string { return t.name }

// Columns returns field names of the first file in declaration order.
func (t *Table) Columns() ([]string, error) {
	h, err := openParquet(t.files[0])
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return resolveColumns(h.pf.Schema(), nil).order, nil
}

// ScanOptions selects columns and a row range.
type ScanOptions struct {
	Columns []string // nil keeps all columns
	Drop    []string
	From    int
	To      int // exclusive; 0 means Len()
}

// keep returns the projection predicate over a leaf name and its top-level
// column. Dropping or selecting a struct column covers all of its leaves.
func (o ScanOptions) keep() func(name, top string) bool {
	if len(o.Columns) == 0 && len(o.Drop) == 0 {
		return nil
	}
	only := make(map[string]bool, len(o.Columns))
	for _, c := range o.Columns {
		only[c] = true
	}
	drop := make(map[string]bool, len(o.Drop))
	for _, c := range o.Drop {
		drop[c] = true
	}
	return func(name, top string) bool {
		if drop[name] || drop[top] {
			return false
		}
		return len(only) == 0 || only[name] || only[top]
	}
}

// RowFunc receives a global row offset and its record. Returning an error stops the scan.
type RowFunc func(offset int, rec record.Record) error

// Scan streams rows in [From, To) in order.
func (t *Table) Scan(ctx context.Context, opts ScanOptions, fn RowFunc) error {
	to := opts.To
	if to <= 0 || to > t.total {
		to = t.total
	}
	from := max(opts.From, 0)
	if from >= to {
		return nil
	}
	keep := opts.keep()

	for fi, path := range t.files {
		fileStart := t.starts[fi]
		fileEnd := t.total
		if fi+1 < len(t.starts) {
			fileEnd = t.starts[fi+1]
		}
		if fileEnd <= from || fileStart >= to {
			continue
		}
		if err := t.scanFile(ctx, path, fileStart, from, to, keep, fn); err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// ScanIDs streams the identifier column.
func (t *Table) ScanIDs(ctx context.Context, column string, fn func(offset int, id string) error) error {
	return t.Scan(ctx, ScanOptions{Columns: []string{column}}, func(offset int, rec record.Record) error {
		id, err := rec.ID(column)
		if err != nil {
			return err
		}
		return fn(offset, id)
	})
}

func (t *Table) scanFile(
	ctx context.Context, path string, fileStart, from, to int, keep func(name, top string) bool, fn RowFunc,
) error {
	h, err := openParquet(path)
	if err != nil {
		return err
	}
	defer h.Close()

	cols := resolveColumns(h.pf.Schema(), keep)
	seq := fileStart
	emitted := 0
	defer func() { metrics.RowsScannedTotal.WithLabelValues(t.name).Add(float64(emitted)) }()

	for _, rg := range h.pf.RowGroups() {
		rgRows := int(rg.NumRows())
		if seq+rgRows <= from {
			seq += rgRows
			continue
		}
		if seq >= to {
			return nil
		}

		rows := parquet.NewRowGroupReader(rg)
		if skip := from - seq; skip > 0 {
			if err := rows.SeekToRow(int64(skip)); err != nil {
				_ = rows.Close()
				return fmt.Errorf("seek: %w", err)
			}
			seq = from
		}

		err := readRows(ctx, rows, func(row parquet.Row) (bool, error) {
			if seq >= to {
				return false, nil
			}
			if err := fn(seq, cols.record(row)); err != nil {
				return false, err
			}
			seq++
			emitted++
			return true, nil
		})
		_ = rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Rows streams the records at the given offsets in the order given.
// Offsets are resolved by seeking, so sorted input reads each row group once.
func (t *Table) Rows(ctx context.Context, offsets []int, opts ScanOptions, fn RowFunc) error {
	keep := opts.keep()
	var cur *fileCursor
	defer func() {
		if cur != nil {
			cur.Close()
		}
	}()

	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if off < 0 || off >= t.total {
			return fmt.Errorf("row offset %d out of range [0, %d)", off, t.total)
		}
		fi := sort.Search(len(t.starts), func(i int) bool { return t.starts[i] > off }) - 1

		if cur == nil || cur.file != fi {
			if cur != nil {
				cur.Close()
			}
			var err error
			cur, err = openCursor(t.files[fi], fi, keep)
			if err != nil {
				return fmt.Errorf("open %s: %w", filepath.Base(t.files[fi]), err)
			}
		}

		rec, err := cur.at(off - t.starts[fi])
		if err != nil {
			return fmt.Errorf("row %d: %w", off, err)
		}
		if err := fn(off, rec); err != nil {
			return err
		}
	}
	metrics.RowsScannedTotal.WithLabelValues(t.name).Add(float64(len(offsets)))
	return nil
}

// Row reads a single record.
func (t *Table) Row(ctx context.Context, offset int) (record.Record, error) {
	var out record.Record
	err := t.Rows(ctx, []int{offset}, ScanOptions{}, func(_ int, rec record.Record) error {
		out = rec
		return nil
	})
	return out, err
}

func readRows(ctx context.Context, rows parquet.RowReader, fn func(parquet.Row) (bool, error)) error {
	buf := make([]parquet.Row, readBatch)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := rows.ReadRows(buf)
		for i := 0; i < n; i++ {
			more, err := fn(buf[i])
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read rows: %w", readErr)
		}
	}
}

// fileCursor serves random reads within one parquet file.
type fileCursor struct {
	h      *parquetHandle
	file   int
	cols   columnMap
	groups []parquet.RowGroup
	starts []int
	group  int
	reader *parquet.Reader
	next   int // local offset the reader will return next
	buf    []parquet.Row
}

func openCursor(path string, file int, keep func(name, top string) bool) (*fileCursor, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	c := &fileCursor{
		h:      h,
		file:   file,
		cols:   resolveColumns(h.pf.Schema(), keep),
		groups: h.pf.RowGroups(),
		group:  -1,
		buf:    make([]parquet.Row, 1),
	}
	start := 0
	for _, rg := range c.groups {
		c.starts = append(c.starts, start)
		start += int(rg.NumRows())
	}
	return c, nil
}

func (c *fileCursor) at(local int) (record.Record, error) {
	g := sort.Search(len(c.starts), func(i int) bool { return c.starts[i] > local }) - 1
	if g != c.group || local < c.next {
		if c.reader != nil {
			_ = c.reader.Close()
		}
		c.reader = parquet.NewRowGroupReader(c.groups[g])
		c.group = g
		c.next = c.starts[g]
	}
	if local != c.next {
		if err := c.reader.SeekToRow(int64(local - c.starts[g])); err != nil {
			return record.Record{}, fmt.Errorf("seek: %w", err)
		}
		c.next = local
	}

	n, err := c.reader.ReadRows(c.buf)
	if n == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return record.Record{}, fmt.Errorf("read row: %w", err)
	}
	c.next++
	return c.cols.record(c.buf[0]), nil
}

func (c *fileCursor) Close() {
	if c.reader != nil {
		_ = c.reader.Close()
	}
	c.h.Close()
}

// columnMap maps leaf column indexes to record fields.
type columnMap struct {
	names []string // leaf index -> field name
	list  []bool   // leaf index -> repeated
	elem  []int    // leaf index -> definition level of a list element
	kept  []bool   // leaf index -> projected
	order []string // projected field names in declaration order
}

// resolveColumns names each leaf after its top-level column. Struct columns
// with several leaves become "<column>.<leaf>".
func resolveColumns(schema *parquet.Schema, keep func(name, top string) bool) columnMap {
	paths := schema.Columns()
	perTop := make(map[string]int, len(paths))
	for _, p := range paths {
		if len(p) > 0 {
			perTop[p[0]]++
		}
	}

	cm := columnMap{
		names: make([]string, len(paths)),
		list:  make([]bool, len(paths)),
		elem:  make([]int, len(paths)),
		kept:  make([]bool, len(paths)),
	}
	seen := make(map[string]bool, len(paths))
	for i, p := range paths {
		if len(p) == 0 {
			continue
		}
		name := p[0]
		if perTop[name] > 1 {
			name = p[0] + "." + p[len(p)-1]
		}
		cm.names[i] = name
		if leaf, ok := schema.Lookup(p...); ok {
			cm.list[i] = leaf.MaxRepetitionLevel > 0
		}
		cm.elem[i] = elementLevel(schema, p)
		cm.kept[i] = keep == nil || keep(name, p[0])
		if cm.kept[i] && !seen[name] {
			seen[name] = true
			cm.order = append(cm.order, name)
		}
	}
	return cm
}

func (cm columnMap) record(row parquet.Row) record.Record {
	scalars := make(map[string]string, len(cm.order))
	lists := make(map[string][]string)
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(cm.names) || !cm.kept[col] {
			continue
		}
		name := cm.names[col]
		if cm.list[col] {
			if _, ok := lists[name]; !ok {
				lists[name] = []string{}
			}
			// Below the element level the list itself is null or empty.
			// A null element keeps its slot so sibling lists stay aligned.
			if v.DefinitionLevel() < cm.elem[col] {
				continue
			}
			item := ""
			if !v.IsNull() {
				item = v.String()
			}
			lists[name] = append(lists[name], item)
			continue
		}
		if !v.IsNull() {
			scalars[name] = v.String()
		}
	}

	fields := make([]record.Field, 0, len(cm.order))
	for _, name := range cm.order {
		if items, ok := lists[name]; ok {
			fields = append(fields, record.Field{Name: name, Value: record.List(items...)})
			continue
		}
		if cm.isList(name) {
			fields = append(fields, record.Field{Name: name, Value: record.List()})
			continue
		}
		fields = append(fields, record.Field{Name: name, Value: record.Scalar(scalars[name])})
	}
	return record.New(fields...)
}

// elementLevel returns the definition level at which the innermost repeated
// node on path is present, 0 for columns outside any list.
func elementLevel(schema *parquet.Schema, path []string) int {
	fields := schema.Fields()
	def, level := 0, 0
	for _, name := range path {
		var node parquet.Field
		for _, f := range fields {
			if f.Name() == name {
				node = f
				break
			}
		}
		if node == nil {
			break
		}
		if node.Optional() || node.Repeated() {
			def++
		}
		if node.Repeated() {
			level = def
		}
		fields = node.Fields()
	}
	return level
}

func (cm columnMap) isList(name string) bool {
	for i, n := range cm.names {
		if n == name {
			return cm.list[i]
		}
	}
	return false
}

// parquetHandle wraps parquet.File + underlying os.File for proper cleanup.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	cleanPath := filepath.Clean(path)
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}
