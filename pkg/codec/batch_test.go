package codec

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordBatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		wantErr error
	}{
		{
			name:    "empty name",
			columns: []Column{{Name: "", Type: Int64, Values: []int64{1}}},
			wantErr: ErrInvalidBatch,
		},
		{
			name: "duplicate name",
			columns: []Column{
				{Name: "Epoch", Type: Int64, Values: []int64{1}},
				{Name: "Epoch", Type: Int64, Values: []int64{1}},
			},
			wantErr: ErrInvalidBatch,
		},
		{
			name: "unequal lengths",
			columns: []Column{
				{Name: "Epoch", Type: Int64, Values: []int64{1, 2}},
				{Name: "Open", Type: Float32, Values: []float32{1}},
			},
			wantErr: ErrInvalidBatch,
		},
		{
			name:    "unsupported tag",
			columns: []Column{{Name: "Epoch", Type: TypeTag{KindInt, 3}, Values: []int64{1}}},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "values do not match tag",
			columns: []Column{{Name: "Open", Type: Float64, Values: []float32{1}}},
			wantErr: ErrUnsupportedType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecordBatch(tt.columns...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecordBatchAccessors(t *testing.T) {
	b := ohlcvBatch(t)

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 4, b.NumColumns())

	idx, ok := b.Index()
	require.True(t, ok)
	assert.Equal(t, "Epoch", idx.Name)

	opens, ok := b.Float32s("Open")
	require.True(t, ok)
	assert.Equal(t, []float32{152.37, 152.34}, opens)

	_, ok = b.Float64s("Open")
	assert.False(t, ok)
	_, ok = b.Int64s("Missing")
	assert.False(t, ok)

	notes, ok := b.Strings("Note")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, notes)

	col, ok := b.Column("Volume")
	require.True(t, ok)
	assert.Equal(t, int32(200), col.Value(1))
	assert.Equal(t, 2, col.Len())

	_, ok = EmptyBatch(nil).Index()
	assert.False(t, ok)
}

func TestSliceConcatenationReconstructsBatch(t *testing.T) {
	b, err := NewRecordBatch(
		Column{Name: "Epoch", Type: Int64, Values: []int64{1, 2, 3, 4, 5}},
		Column{Name: "Close", Type: Float64, Values: []float64{1.5, 2.5, 3.5, 4.5, 5.5}},
		Column{Name: "Sym", Type: String(4), Values: []string{"A", "A", "B", "B", "B"}},
	)
	require.NoError(t, err)

	first, err := b.Slice(0, 2)
	require.NoError(t, err)
	second, err := b.Slice(2, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Len())
	assert.Equal(t, 3, second.Len())

	joined, err := Concat(first, second)
	require.NoError(t, err)
	assert.Equal(t, b.Columns(), joined.Columns())
}

func TestSliceIsIndependent(t *testing.T) {
	values := []int64{10, 20, 30}
	b, err := NewRecordBatch(Column{Name: "Epoch", Type: Int64, Values: values})
	require.NoError(t, err)

	s, err := b.Slice(1, 2)
	require.NoError(t, err)
	values[1] = 99

	got, _ := s.Int64s("Epoch")
	assert.Equal(t, []int64{20, 30}, got)
}

func TestSlice_OutOfRange(t *testing.T) {
	b := ohlcvBatch(t)
	for _, r := range [][2]int{{-1, 1}, {0, 3}, {2, 1}, {1, -1}, {1, math.MaxInt}, {math.MaxInt, 1}, {3, 0}} {
		_, err := b.Slice(r[0], r[1])
		require.ErrorIs(t, err, ErrDatasetRange, "range %v", r)

		var dre *DatasetRangeError
		require.ErrorAs(t, err, &dre)
		assert.Equal(t, 2, dre.Total)
	}

	s, err := b.Slice(2, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 4, s.NumColumns())
}

func TestTake(t *testing.T) {
	b, err := NewRecordBatch(
		Column{Name: "Epoch", Type: Int64, Values: []int64{3, 1, 2}},
		Column{Name: "Flag", Type: Uint8, Values: []uint8{30, 10, 20}},
	)
	require.NoError(t, err)

	sorted, err := b.Take([]int{1, 2, 0})
	require.NoError(t, err)
	epochs, _ := sorted.Int64s("Epoch")
	assert.Equal(t, []int64{1, 2, 3}, epochs)
	flags, _ := sorted.Column("Flag")
	assert.Equal(t, []uint8{10, 20, 30}, flags.Values)

	_, err = b.Take([]int{3})
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestConcat_Mismatch(t *testing.T) {
	a, err := NewRecordBatch(Column{Name: "Epoch", Type: Int64, Values: []int64{1}})
	require.NoError(t, err)
	b, err := NewRecordBatch(Column{Name: "Epoch", Type: Int32, Values: []int32{1}})
	require.NoError(t, err)
	c, err := NewRecordBatch(
		Column{Name: "Epoch", Type: Int64, Values: []int64{1}},
		Column{Name: "Close", Type: Float64, Values: []float64{1}},
	)
	require.NoError(t, err)

	_, err = Concat(a, b)
	assert.ErrorIs(t, err, ErrInvalidBatch)
	_, err = Concat(a, c)
	assert.ErrorIs(t, err, ErrInvalidBatch)
	_, err = Concat()
	assert.ErrorIs(t, err, ErrInvalidBatch)
}

func TestTimes(t *testing.T) {
	b, err := NewRecordBatch(
		Column{Name: "Epoch", Type: Int64, Values: []int64{1700000000, 1700000001}},
		Column{Name: "Nanoseconds", Type: Int32, Values: []int32{0, 500}},
	)
	require.NoError(t, err)

	times, err := b.Times()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Unix(1700000000, 0).UTC(),
		time.Unix(1700000001, 500).UTC(),
	}, times)

	noEpoch, err := NewRecordBatch(Column{Name: "Close", Type: Float64, Values: []float64{1}})
	require.NoError(t, err)
	_, err = noEpoch.Times()
	assert.Error(t, err)

	wideNanos, err := NewRecordBatch(
		Column{Name: "Epoch", Type: Int64, Values: []int64{1700000000}},
		Column{Name: "Nanoseconds", Type: Int64, Values: []int64{500}},
	)
	require.NoError(t, err)
	_, err = wideNanos.Times()
	assert.Error(t, err)
}

func TestEmptyBatchKeepsSchema(t *testing.T) {
	b := EmptyBatch([]ColumnSpec{{Name: "Epoch", Type: Int64}, {Name: "Note", Type: String(8)}})
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []ColumnSpec{{Name: "Epoch", Type: Int64}, {Name: "Note", Type: String(8)}}, b.Specs())

	notes, ok := b.Strings("Note")
	require.True(t, ok)
	assert.Empty(t, notes)
}
