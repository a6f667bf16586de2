// Package matfile writes MATLAB Level 5 MAT-files. It covers the subset an
// archive of rectangular columns needs: int64 and double matrices, char row
// vectors, cell arrays and scalar structs. Files are little-endian and every
// element uses the long (8-byte) tag form, which all Level 5 readers accept.
package matfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
)

const (
	miINT8   = 1
	miINT32  = 5
	miUINT32 = 6
	miUINT16 = 7
	miDOUBLE = 9
	miINT64  = 12
	miMATRIX = 14

	mxCELL   = 1
	mxSTRUCT = 2
	mxCHAR   = 4
	mxDOUBLE = 6
	mxINT64  = 14
)

// MaxNameLen is MATLAB's identifier length limit.
const MaxNameLen = 63

var ErrBadName = errors.New("matfile: invalid variable name")

// Value is a MATLAB array that can be written as a variable, a cell element
// or a struct field.
type Value interface {
	emit(buf *bytes.Buffer, name string) error
}

// Writer emits one MAT-file: a fixed header followed by one miMATRIX element
// per variable.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) (*Writer, error) {
	var header [128]byte
	text := "MATLAB 5.0 MAT-file, created by lcm2smat"
	copy(header[:116], text)
	for i := len(text); i < 116; i++ {
		header[i] = ' '
	}
	binary.LittleEndian.PutUint16(header[124:], 0x0100)
	header[126] = 'I'
	header[127] = 'M'
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("matfile: header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteVariable appends one named top-level variable.
func (w *Writer) WriteVariable(name string, v Value) error {
	if err := checkName(name); err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err := v.emit(buf, name); err != nil {
		return err
	}
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("matfile: %s: %w", name, err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

// Int64Matrix is a rows x cols int64 array. Data is row-major and transposed
// to MATLAB's column-major order on write.
type Int64Matrix struct {
	Rows, Cols int
	Data       []int64
}

func (m *Int64Matrix) emit(buf *bytes.Buffer, name string) error {
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matfile: %s: %dx%d matrix with %d values", name, m.Rows, m.Cols, len(m.Data))
	}
	data := make([]byte, 8*len(m.Data))
	for c := 0; c < m.Cols; c++ {
		for r := 0; r < m.Rows; r++ {
			i := c*m.Rows + r
			binary.LittleEndian.PutUint64(data[8*i:], uint64(m.Data[r*m.Cols+c]))
		}
	}
	return emitMatrix(buf, mxINT64, name, m.Rows, m.Cols, func(inner *bytes.Buffer) error {
		emitElement(inner, miINT64, data)
		return nil
	})
}

// DoubleMatrix is a rows x cols float64 array, row-major in Data.
type DoubleMatrix struct {
	Rows, Cols int
	Data       []float64
}

func (m *DoubleMatrix) emit(buf *bytes.Buffer, name string) error {
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matfile: %s: %dx%d matrix with %d values", name, m.Rows, m.Cols, len(m.Data))
	}
	data := make([]byte, 8*len(m.Data))
	for c := 0; c < m.Cols; c++ {
		for r := 0; r < m.Rows; r++ {
			i := c*m.Rows + r
			binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(m.Data[r*m.Cols+c]))
		}
	}
	return emitMatrix(buf, mxDOUBLE, name, m.Rows, m.Cols, func(inner *bytes.Buffer) error {
		emitElement(inner, miDOUBLE, data)
		return nil
	})
}

// CharVector is a 1 x n char row vector holding UTF-16 code units; the empty
// string becomes a 0 x 0 char array, MATLAB's ''.
type CharVector struct {
	S string
}

func (m *CharVector) emit(buf *bytes.Buffer, name string) error {
	units := utf16.Encode([]rune(m.S))
	rows, cols := 1, len(units)
	if len(units) == 0 {
		rows = 0
	}
	data := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(data[2*i:], u)
	}
	return emitMatrix(buf, mxCHAR, name, rows, cols, func(inner *bytes.Buffer) error {
		emitElement(inner, miUINT16, data)
		return nil
	})
}

// Cell is a rows x cols cell array; Elems is row-major and transposed on
// write.
type Cell struct {
	Rows, Cols int
	Elems      []Value
}

func (m *Cell) emit(buf *bytes.Buffer, name string) error {
	if len(m.Elems) != m.Rows*m.Cols {
		return fmt.Errorf("matfile: %s: %dx%d cell with %d elements", name, m.Rows, m.Cols, len(m.Elems))
	}
	return emitMatrix(buf, mxCELL, name, m.Rows, m.Cols, func(inner *bytes.Buffer) error {
		for c := 0; c < m.Cols; c++ {
			for r := 0; r < m.Rows; r++ {
				if err := m.Elems[r*m.Cols+c].emit(inner, ""); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Struct is a 1 x 1 scalar struct. Field order is preserved.
type Struct struct {
	fields []structField
}

type structField struct {
	name  string
	value Value
}

// Add appends a field. Names must be valid MATLAB identifiers of at most
// MaxNameLen bytes; the caller is responsible for sanitization.
func (m *Struct) Add(name string, v Value) error {
	if err := checkName(name); err != nil {
		return err
	}
	m.fields = append(m.fields, structField{name: name, value: v})
	return nil
}

func (m *Struct) emit(buf *bytes.Buffer, name string) error {
	nameLen := 1
	for _, f := range m.fields {
		if len(f.name)+1 > nameLen {
			nameLen = len(f.name) + 1
		}
	}
	return emitMatrix(buf, mxSTRUCT, name, 1, 1, func(inner *bytes.Buffer) error {
		var fl [4]byte
		binary.LittleEndian.PutUint32(fl[:], uint32(nameLen))
		emitElement(inner, miINT32, fl[:])

		names := make([]byte, nameLen*len(m.fields))
		for i, f := range m.fields {
			copy(names[i*nameLen:], f.name)
		}
		emitElement(inner, miINT8, names)

		for _, f := range m.fields {
			if err := f.value.emit(inner, ""); err != nil {
				return fmt.Errorf("field %s: %w", f.name, err)
			}
		}
		return nil
	})
}

// emitMatrix writes one full miMATRIX element: array flags, dimensions and
// name sub-elements, then whatever body fills in.
func emitMatrix(buf *bytes.Buffer, class uint32, name string, rows, cols int, body func(*bytes.Buffer) error) error {
	inner := new(bytes.Buffer)

	var flags [8]byte
	binary.LittleEndian.PutUint32(flags[:], class)
	emitElement(inner, miUINT32, flags[:])

	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:], uint32(rows))
	binary.LittleEndian.PutUint32(dims[4:], uint32(cols))
	emitElement(inner, miINT32, dims[:])

	emitElement(inner, miINT8, []byte(name))

	if err := body(inner); err != nil {
		return err
	}

	emitElement(buf, miMATRIX, inner.Bytes())
	return nil
}

// emitElement writes a long-form tag, the data, and zero padding to the next
// 8-byte boundary.
func emitElement(buf *bytes.Buffer, typ uint32, data []byte) {
	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[:], typ)
	binary.LittleEndian.PutUint32(tag[4:], uint32(len(data)))
	buf.Write(tag[:])
	buf.Write(data)
	if rem := len(data) % 8; rem != 0 {
		var zeros [8]byte
		buf.Write(zeros[:8-rem])
	}
}
