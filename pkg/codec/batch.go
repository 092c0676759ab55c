package codec

import (
	"fmt"
	"time"
)

const (
	// EpochColumn is the conventional index column name (int64 epoch seconds)
	EpochColumn = "Epoch"
	// NanosecondsColumn optionally carries the sub-second part of the index
	NanosecondsColumn = "Nanoseconds"
)

// ColumnSpec describes one column of a batch as carried in the header.
type ColumnSpec struct {
	Name  string
	Type  TypeTag
	Count int
}

// Column is a named, typed column. Values holds the Go slice matching Type
// ([]int64 for <i8, []float32 for <f4, []string for <Un, ...).
type Column struct {
	Name   string
	Type   TypeTag
	Values interface{}
}

// Len returns the number of elements in the column.
func (c Column) Len() int {
	return valuesLen(c.Values)
}

// RecordBatch is an ordered set of equal-length columns. The first column is the index.
type RecordBatch struct {
	columns []Column
	byName  map[string]int
	length  int
}

// NewRecordBatch validates columns and builds a batch. Names must be non-empty and
// unique, every Values slice must match its Type, and all columns must be equal length.
func NewRecordBatch(columns ...Column) (*RecordBatch, error) {
	b := &RecordBatch{
		columns: columns,
		byName:  make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrInvalidBatch, i)
		}
		if _, dup := b.byName[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %s", ErrInvalidBatch, col.Name)
		}
		if !col.Type.Supported() {
			return nil, &UnsupportedTypeError{Tag: col.Type}
		}
		if err := checkValues(col.Values, col.Type); err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		n := col.Len()
		if i == 0 {
			b.length = n
		} else if n != b.length {
			return nil, fmt.Errorf("%w: column %s has %d rows, expected %d",
				ErrInvalidBatch, col.Name, n, b.length)
		}
		b.byName[col.Name] = i
	}
	return b, nil
}

// EmptyBatch returns a zero-row batch with the given column layout.
func EmptyBatch(specs []ColumnSpec) *RecordBatch {
	cols := make([]Column, len(specs))
	byName := make(map[string]int, len(specs))
	for i, s := range specs {
		cols[i] = Column{Name: s.Name, Type: s.Type, Values: makeValues(s.Type, 0)}
		byName[s.Name] = i
	}
	return &RecordBatch{columns: cols, byName: byName}
}

// Len returns the number of rows.
func (b *RecordBatch) Len() int { return b.length }

// NumColumns returns the number of columns including the index.
func (b *RecordBatch) NumColumns() int { return len(b.columns) }

// Columns returns the columns in header order.
func (b *RecordBatch) Columns() []Column { return b.columns }

// Column looks a column up by name.
func (b *RecordBatch) Column(name string) (Column, bool) {
	i, ok := b.byName[name]
	if !ok {
		return Column{}, false
	}
	return b.columns[i], true
}

// Index returns the designated index column (the first column).
func (b *RecordBatch) Index() (Column, bool) {
	if len(b.columns) == 0 {
		return Column{}, false
	}
	return b.columns[0], true
}

// Specs returns the column specs of the batch.
func (b *RecordBatch) Specs() []ColumnSpec {
	specs := make([]ColumnSpec, len(b.columns))
	for i, c := range b.columns {
		specs[i] = ColumnSpec{Name: c.Name, Type: c.Type, Count: b.length}
	}
	return specs
}

// Slice copies rows [start, start+length) into an independent batch.
func (b *RecordBatch) Slice(start, length int) (*RecordBatch, error) {
	if start < 0 || length < 0 || start > b.length || length > b.length-start {
		return nil, &DatasetRangeError{Start: start, Length: length, Total: b.length}
	}
	cols := make([]Column, len(b.columns))
	for i, c := range b.columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: sliceValues(c.Values, start, start+length)}
	}
	return &RecordBatch{columns: cols, byName: b.byName, length: length}, nil
}

// Int64s returns the named column as []int64.
func (b *RecordBatch) Int64s(name string) ([]int64, bool) {
	c, ok := b.Column(name)
	if !ok {
		return nil, false
	}
	v, ok := c.Values.([]int64)
	return v, ok
}

// Float32s returns the named column as []float32.
func (b *RecordBatch) Float32s(name string) ([]float32, bool) {
	c, ok := b.Column(name)
	if !ok {
		return nil, false
	}
	v, ok := c.Values.([]float32)
	return v, ok
}

// Float64s returns the named column as []float64.
func (b *RecordBatch) Float64s(name string) ([]float64, bool) {
	c, ok := b.Column(name)
	if !ok {
		return nil, false
	}
	v, ok := c.Values.([]float64)
	return v, ok
}

// Strings returns the named column as []string.
func (b *RecordBatch) Strings(name string) ([]string, bool) {
	c, ok := b.Column(name)
	if !ok {
		return nil, false
	}
	v, ok := c.Values.([]string)
	return v, ok
}

// Times converts the Epoch column, plus Nanoseconds when present, to UTC times.
func (b *RecordBatch) Times() ([]time.Time, error) {
	epochs, ok := b.Int64s(EpochColumn)
	if !ok {
		return nil, fmt.Errorf("batch has no int64 %s column", EpochColumn)
	}
	var nanos []int32
	if c, ok := b.Column(NanosecondsColumn); ok {
		if nanos, ok = c.Values.([]int32); !ok {
			return nil, fmt.Errorf("batch %s column is %s, want int32", NanosecondsColumn, c.Type)
		}
	}
	out := make([]time.Time, len(epochs))
	for i, sec := range epochs {
		var ns int64
		if nanos != nil {
			ns = int64(nanos[i])
		}
		out[i] = time.Unix(sec, ns).UTC()
	}
	return out, nil
}

// Value returns the element at row i of column c as an interface value.
func (c Column) Value(i int) interface{} {
	switch v := c.Values.(type) {
	case []int8:
		return v[i]
	case []int16:
		return v[i]
	case []int32:
		return v[i]
	case []int64:
		return v[i]
	case []uint8:
		return v[i]
	case []uint16:
		return v[i]
	case []uint32:
		return v[i]
	case []uint64:
		return v[i]
	case []float32:
		return v[i]
	case []float64:
		return v[i]
	case []string:
		return v[i]
	default:
		return nil
	}
}

func sliceValues(values interface{}, lo, hi int) interface{} {
	switch v := values.(type) {
	case []int8:
		return append([]int8(nil), v[lo:hi]...)
	case []int16:
		return append([]int16(nil), v[lo:hi]...)
	case []int32:
		return append([]int32(nil), v[lo:hi]...)
	case []int64:
		return append([]int64(nil), v[lo:hi]...)
	case []uint8:
		return append([]uint8(nil), v[lo:hi]...)
	case []uint16:
		return append([]uint16(nil), v[lo:hi]...)
	case []uint32:
		return append([]uint32(nil), v[lo:hi]...)
	case []uint64:
		return append([]uint64(nil), v[lo:hi]...)
	case []float32:
		return append([]float32(nil), v[lo:hi]...)
	case []float64:
		return append([]float64(nil), v[lo:hi]...)
	case []string:
		return append([]string(nil), v[lo:hi]...)
	default:
		return nil
	}
}

func makeValues(tag TypeTag, n int) interface{} {
	v, err := Unpack(make([]byte, n*tag.Width), tag, n)
	if err != nil {
		return nil
	}
	return v
}

// Take returns a new batch holding the rows at idx, in idx order.
func (b *RecordBatch) Take(idx []int) (*RecordBatch, error) {
	for _, i := range idx {
		if i < 0 || i >= b.length {
			return nil, fmt.Errorf("%w: row %d out of range [0, %d)", ErrInvalidBatch, i, b.length)
		}
	}
	cols := make([]Column, len(b.columns))
	for i, c := range b.columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: takeValues(c.Values, idx)}
	}
	return NewRecordBatch(cols...)
}

// Concat appends the rows of batches in order. All batches must share the
// column names and types of the first.
func Concat(batches ...*RecordBatch) (*RecordBatch, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrInvalidBatch)
	}
	first := batches[0]
	cols := make([]Column, len(first.columns))
	for i, c := range first.columns {
		cols[i] = Column{Name: c.Name, Type: c.Type, Values: sliceValues(c.Values, 0, first.length)}
	}
	for n, other := range batches[1:] {
		if len(other.columns) != len(cols) {
			return nil, fmt.Errorf("%w: batch %d has %d columns, want %d", ErrInvalidBatch, n+1, len(other.columns), len(cols))
		}
		for i, c := range other.columns {
			if c.Name != cols[i].Name || c.Type != cols[i].Type {
				return nil, fmt.Errorf("%w: batch %d column %d is %s %s, want %s %s",
					ErrInvalidBatch, n+1, i, c.Name, c.Type, cols[i].Name, cols[i].Type)
			}
			cols[i].Values = appendValues(cols[i].Values, c.Values)
		}
	}
	return NewRecordBatch(cols...)
}

func gather[T any](v []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func takeValues(values interface{}, idx []int) interface{} {
	switch v := values.(type) {
	case []int8:
		return gather(v, idx)
	case []int16:
		return gather(v, idx)
	case []int32:
		return gather(v, idx)
	case []int64:
		return gather(v, idx)
	case []uint8:
		return gather(v, idx)
	case []uint16:
		return gather(v, idx)
	case []uint32:
		return gather(v, idx)
	case []uint64:
		return gather(v, idx)
	case []float32:
		return gather(v, idx)
	case []float64:
		return gather(v, idx)
	case []string:
		return gather(v, idx)
	default:
		return nil
	}
}

func appendValues(dst, src interface{}) interface{} {
	switch v := dst.(type) {
	case []int8:
		return append(v, src.([]int8)...)
	case []int16:
		return append(v, src.([]int16)...)
	case []int32:
		return append(v, src.([]int32)...)
	case []int64:
		return append(v, src.([]int64)...)
	case []uint8:
		return append(v, src.([]uint8)...)
	case []uint16:
		return append(v, src.([]uint16)...)
	case []uint32:
		return append(v, src.([]uint32)...)
	case []uint64:
		return append(v, src.([]uint64)...)
	case []float32:
		return append(v, src.([]float32)...)
	case []float64:
		return append(v, src.([]float64)...)
	case []string:
		return append(v, src.([]string)...)
	default:
		return nil
	}
}
