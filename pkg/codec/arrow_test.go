package codec

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrowSchema(t *testing.T) {
	schema, err := ohlcvBatch(t).ArrowSchema()
	require.NoError(t, err)

	require.Len(t, schema.Fields(), 4)
	epoch := schema.Field(0)
	assert.Equal(t, "Epoch", epoch.Name)
	assert.Equal(t, arrow.TIMESTAMP, epoch.Type.ID())
	v, ok := epoch.Metadata.GetValue("mkts.index")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	assert.Equal(t, arrow.PrimitiveTypes.Float32, schema.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Int32, schema.Field(2).Type)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(3).Type)
}

func TestToArrow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec, err := ohlcvBatch(t).ToArrow(mem)
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(2), rec.NumRows())
	assert.Equal(t, int64(4), rec.NumCols())

	epochs := rec.Column(0).(*array.Timestamp)
	assert.Equal(t, arrow.Timestamp(2000000000), epochs.Value(0))
	assert.Equal(t, arrow.Timestamp(2500000000), epochs.Value(1))

	opens := rec.Column(1).(*array.Float32)
	assert.Equal(t, []float32{152.37, 152.34}, opens.Float32Values())

	notes := rec.Column(3).(*array.String)
	assert.Equal(t, "b", notes.Value(1))
}

func TestToArrow_NonEpochIndex(t *testing.T) {
	b, err := NewRecordBatch(
		Column{Name: "Seq", Type: Uint64, Values: []uint64{1, 2}},
		Column{Name: "Level", Type: Int8, Values: []int8{-1, 1}},
	)
	require.NoError(t, err)

	rec, err := b.ToArrow(nil)
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, arrow.PrimitiveTypes.Uint64, rec.Schema().Field(0).Type)
	assert.Equal(t, []uint64{1, 2}, rec.Column(0).(*array.Uint64).Uint64Values())
	assert.Equal(t, []int8{-1, 1}, rec.Column(1).(*array.Int8).Int8Values())
}
