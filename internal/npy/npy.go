// Package npy reads and writes 2-D little-endian float matrices in the NumPy
// .npy format (versions 1.0 and 2.0).
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/x448/float16"
)

// DType is a NumPy type descriptor.
type DType string

// Supported descriptors.
const (
	Float16 DType = "<f2"
	Float32 DType = "<f4"
	Float64 DType = "<f8"
)

// Size is the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

var magic = []byte("\x93NUMPY")

const headerAlign = 64

// maxPrealloc caps how many elements are allocated ahead of reading them.
const maxPrealloc = 1 << 20

const maxHeader = 1 << 16

// ErrFormat signals a malformed or unsupported .npy stream.
var ErrFormat = errors.New("npy: unsupported format")

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix stacks equal-length rows. All rows must have cols elements.
func NewMatrix(rows [][]float32, cols int) (Matrix, error) {
	m := Matrix{Rows: len(rows), Cols: cols, Data: make([]float32, 0, len(rows)*cols)}
	for i, r := range rows {
		if len(r) != cols {
			return Matrix{}, fmt.Errorf("row %d has %d columns, want %d", i, len(r), cols)
		}
		m.Data = append(m.Data, r...)
	}
	return m, nil
}

// Row returns row i without copying.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Write encodes m as a version 1.0 .npy stream with the given storage type.
func Write(w io.Writer, m Matrix, dt DType) error {
	if dt.Size() == 0 || dt == Float64 {
		return fmt.Errorf("%w: cannot write %q", ErrFormat, dt)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("npy: data length %d does not match shape (%d, %d)", len(m.Data), m.Rows, m.Cols)
	}

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d, %d), }", dt, m.Rows, m.Cols)
	// magic(6) + version(2) + len(2) + header + '\n' padded to the alignment
	total := len(magic) + 4 + len(header) + 1
	if pad := total % headerAlign; pad != 0 {
		header += strings.Repeat(" ", headerAlign-pad)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("%w: header too long", ErrFormat)
	}

	bw := bufio.NewWriter(w)
	bw.Write(magic)
	bw.Write([]byte{1, 0})
	var hl [2]byte
	binary.LittleEndian.PutUint16(hl[:], uint16(len(header)))
	bw.Write(hl[:])
	bw.WriteString(header)

	buf := make([]byte, dt.Size())
	for _, f := range m.Data {
		switch dt {
		case Float16:
			binary.LittleEndian.PutUint16(buf, float16.Fromfloat32(f).Bits())
		case Float32:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("npy: write data: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("npy: flush: %w", err)
	}
	return nil
}

// WriteFile writes m to path atomically.
func WriteFile(path string, m Matrix, dt DType) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("npy: create dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("npy: create: %w", err)
	}
	if err := Write(f, m, dt); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("npy: close: %w", err)
	}
	return os.Rename(tmp, path)
}

var (
	reDescr   = regexp.MustCompile(`'descr':\s*'([^']+)'`)
	reFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Read decodes a .npy stream into float32, whatever its float storage type.
func Read(r io.Reader) (Matrix, error) {
	return read(r, -1)
}

// read decodes a stream of size bytes; a negative size means unknown.
func read(r io.Reader, size int64) (Matrix, error) {
	br := bufio.NewReader(r)

	pre := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(br, pre); err != nil {
		return Matrix{}, fmt.Errorf("npy: read preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return Matrix{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	consumed := int64(len(pre))
	var headerLen int
	switch major := pre[len(magic)]; major {
	case 1:
		var hl [2]byte
		if _, err := io.ReadFull(br, hl[:]); err != nil {
			return Matrix{}, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint16(hl[:]))
		consumed += 2
	case 2, 3:
		var hl [4]byte
		if _, err := io.ReadFull(br, hl[:]); err != nil {
			return Matrix{}, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint32(hl[:]))
		consumed += 4
	default:
		return Matrix{}, fmt.Errorf("%w: version %d", ErrFormat, major)
	}

	if headerLen > maxHeader || (size >= 0 && int64(headerLen) > size-consumed) {
		return Matrix{}, fmt.Errorf("%w: header length %d exceeds file", ErrFormat, headerLen)
	}
	consumed += int64(headerLen)
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return Matrix{}, fmt.Errorf("npy: read header: %w", err)
	}

	dt, rows, cols, err := parseHeader(string(header))
	if err != nil {
		return Matrix{}, err
	}

	if cols > 0 && rows > math.MaxInt/dt.Size()/cols {
		return Matrix{}, fmt.Errorf("%w: shape (%d, %d) too large", ErrFormat, rows, cols)
	}
	n := rows * cols
	if payload := size - consumed; size >= 0 && payload != int64(n)*int64(dt.Size()) {
		return Matrix{}, fmt.Errorf("%w: %d data bytes do not match shape (%d, %d) of %s",
			ErrFormat, payload, rows, cols, dt)
	}

	m := Matrix{Rows: rows, Cols: cols, Data: make([]float32, 0, min(n, maxPrealloc))}
	buf := make([]byte, dt.Size())
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return Matrix{}, fmt.Errorf("npy: read element %d: %w", i, err)
		}
		var v float32
		switch dt {
		case Float16:
			v = float16.Frombits(binary.LittleEndian.Uint16(buf)).Float32()
		case Float32:
			v = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		case Float64:
			v = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf)))
		}
		m.Data = append(m.Data, v)
	}
	return m, nil
}

// ReadFile reads a .npy file.
func ReadFile(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("npy: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return Matrix{}, fmt.Errorf("npy: stat: %w", err)
	}
	m, err := read(f, st.Size())
	if err != nil {
		return Matrix{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseHeader(h string) (DType, int, int, error) {
	dm := reDescr.FindStringSubmatch(h)
	if dm == nil {
		return "", 0, 0, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	dt := DType(dm[1])
	if dt.Size() == 0 {
		return "", 0, 0, fmt.Errorf("%w: descr %q", ErrFormat, dm[1])
	}
	if fm := reFortran.FindStringSubmatch(h); fm != nil && fm[1] == "True" {
		return "", 0, 0, fmt.Errorf("%w: fortran order", ErrFormat)
	}
	sm := reShape.FindStringSubmatch(h)
	if sm == nil {
		return "", 0, 0, fmt.Errorf("%w: missing shape", ErrFormat)
	}

	var dims []int
	for _, p := range strings.Split(sm[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", 0, 0, fmt.Errorf("%w: shape %q", ErrFormat, sm[1])
		}
		dims = append(dims, n)
	}

	switch len(dims) {
	case 1:
		return dt, dims[0], 1, nil
	case 2:
		return dt, dims[0], dims[1], nil
	default:
		return "", 0, 0, fmt.Errorf("%w: %d-D arrays", ErrFormat, len(dims))
	}
}
