// Package matrix reads and writes the embedding matrix as a NumPy .npy file
// (format version 1.0, little-endian float32, C order).
package matrix

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

	"nutrition-rag/internal/apperr"
)

var magic = []byte("\x93NUMPY")

const headerAlign = 64

var (
	descrPattern = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	orderPattern = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapePattern = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// Matrix is a dense row-major float32 matrix. Rows are aligned 1:1 with the
// chunk table.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// FromRows builds a matrix from equal-length rows.
func FromRows(rows [][]float32) (*Matrix, error) {
	m := &Matrix{Rows: len(rows)}
	if len(rows) == 0 {
		return m, nil
	}
	m.Cols = len(rows[0])
	m.Data = make([]float32, 0, m.Rows*m.Cols)
	for i, r := range rows {
		if len(r) != m.Cols {
			return nil, apperr.Errorf(apperr.KindDataContract, "matrix", "row %d has %d columns, want %d", i, len(r), m.Cols)
		}
		m.Data = append(m.Data, r...)
	}
	return m, nil
}

// Row returns row i. The slice aliases the matrix data.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// WriteFile writes m to path, replacing any existing file atomically.
func WriteFile(path string, m *Matrix) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".matrix-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	w := bufio.NewWriter(tmp)
	err = Write(w, m)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write matrix: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move matrix into place: %w", err)
	}
	return nil
}

// Write encodes m in .npy format.
func Write(w io.Writer, m *Matrix) error {
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matrix data length %d does not match shape (%d, %d)", len(m.Data), m.Rows, m.Cols)
	}

	dict := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows, m.Cols)
	// magic(6) + version(2) + header length(2) + dict + padding + '\n'
	prefix := len(magic) + 4
	total := prefix + len(dict) + 1
	if rem := total % headerAlign; rem != 0 {
		total += headerAlign - rem
	}
	header := dict + strings.Repeat(" ", total-prefix-len(dict)-1) + "\n"

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	row := make([]byte, 4*m.Cols)
	for i := 0; i < m.Rows; i++ {
		for j, v := range m.Row(i) {
			binary.LittleEndian.PutUint32(row[4*j:], math.Float32bits(v))
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile reads a matrix from path.
func ReadFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open matrix: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Read(bufio.NewReader(f))
}

// Read decodes a 2-D little-endian float32 .npy stream. Other dtypes,
// Fortran order and non-2-D shapes are data contract errors.
func Read(r io.Reader) (*Matrix, error) {
	pre := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, contractErr("failed to read preamble: %v", err)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return nil, contractErr("not an npy file")
	}

	var headerLen int
	switch major := pre[len(magic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, contractErr("failed to read header length: %v", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, contractErr("failed to read header length: %v", err)
		}
		headerLen = int(n)
	default:
		return nil, contractErr("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, contractErr("failed to read header: %v", err)
	}

	rows, cols, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}

	m := &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
	raw := make([]byte, 4*cols)
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, contractErr("matrix truncated at row %d of %d", i, rows)
			}
			return nil, fmt.Errorf("failed to read row %d: %w", i, err)
		}
		row := m.Row(i)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*j:]))
		}
	}
	return m, nil
}

func parseHeader(h string) (rows, cols int, err error) {
	descr := descrPattern.FindStringSubmatch(h)
	if descr == nil || descr[1] != "<f4" {
		return 0, 0, contractErr("unsupported dtype in header %q", strings.TrimSpace(h))
	}
	if order := orderPattern.FindStringSubmatch(h); order == nil || order[1] != "False" {
		return 0, 0, contractErr("fortran-ordered matrices are not supported")
	}
	shape := shapePattern.FindStringSubmatch(h)
	if shape == nil {
		return 0, 0, contractErr("missing shape in header")
	}

	var dims []int
	for _, part := range strings.Split(shape[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return 0, 0, contractErr("invalid shape %q", shape[1])
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return 0, 0, contractErr("expected a 2-D matrix, got shape (%s)", shape[1])
	}
	return dims[0], dims[1], nil
}

func contractErr(format string, args ...any) error {
	return apperr.Errorf(apperr.KindDataContract, "read matrix", format, args...)
}
