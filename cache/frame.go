package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

const (
	frameMagic   = "DCF1"
	frameVersion = uint32(1)
	maxNameLen   = math.MaxUint16
)

// ErrCorruptFrame is returned when a persisted frame cannot be decoded.
var ErrCorruptFrame = errors.New("corrupt frame")

// Column is a named float64 column.
type Column struct {
	Name   string
	Values []float64
}

// Frame is a columnar array of equally long float64 columns.
type Frame struct {
	Columns []Column
}

// NewFrame returns a frame with a single column.
func NewFrame(name string, values []float64) Frame {
	return Frame{Columns: []Column{{Name: name, Values: values}}}
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	out := Frame{Columns: make([]Column, len(f.Columns))}
	for i, c := range f.Columns {
		out.Columns[i] = Column{Name: c.Name, Values: slices.Clone(c.Values)}
	}
	return out
}

// Rows returns the column length.
func (f Frame) Rows() int {
	if len(f.Columns) == 0 {
		return 0
	}
	return len(f.Columns[0].Values)
}

// Column returns the values of the named column.
func (f Frame) Column(name string) ([]float64, bool) {
	for _, c := range f.Columns {
		if c.Name == name {
			return c.Values, true
		}
	}
	return nil, false
}

// Validate checks that all columns have the same length and distinct names.
func (f Frame) Validate() error {
	seen := make(map[string]bool, len(f.Columns))
	for _, c := range f.Columns {
		if len(c.Values) != f.Rows() {
			return fmt.Errorf("column %q has %d rows, want %d", c.Name, len(c.Values), f.Rows())
		}
		if len(c.Name) > maxNameLen {
			return fmt.Errorf("column name of %d bytes is too long", len(c.Name))
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// MarshalBinary encodes the frame: magic, version, column count, row count,
// then per column its name and a little-endian float64 block.
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	rows := f.Rows()
	size := len(frameMagic) + 4 + 4 + 8
	for _, c := range f.Columns {
		size += 2 + len(c.Name) + 8*rows
	}

	buf := make([]byte, 0, size)
	buf = append(buf, frameMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, frameVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Columns)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rows))
	for _, c := range f.Columns {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.Name)))
		buf = append(buf, c.Name...)
		for _, v := range c.Values {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes a frame written by MarshalBinary.
func (f *Frame) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	magic := make([]byte, len(frameMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != frameMagic {
		return fmt.Errorf("%w: bad magic", ErrCorruptFrame)
	}

	var header struct {
		Version uint32
		NCols   uint32
		Rows    uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptFrame, err)
	}
	if header.Version != frameVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrCorruptFrame, header.Version, frameVersion)
	}
	// Every column needs at least its name length and its values.
	if header.Rows > uint64(r.Len())/8 || uint64(header.NCols)*(2+8*header.Rows) > uint64(r.Len()) {
		return fmt.Errorf("%w: truncated", ErrCorruptFrame)
	}

	cols := make([]Column, header.NCols)
	for i := range cols {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(r, name); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		values := make([]float64, header.Rows)
		if err := binary.Read(r, binary.LittleEndian, values); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		cols[i] = Column{Name: string(name), Values: values}
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptFrame, r.Len())
	}
	f.Columns = cols
	return nil
}
