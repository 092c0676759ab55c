package codec

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// epochType is the Arrow type used for the Epoch index column.
var epochType = &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}

// ArrowSchema returns the Arrow schema for the batch layout. The index column is
// flagged with the "mkts.index" field metadata.
func (b *RecordBatch) ArrowSchema() (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(b.columns))
	for i, c := range b.columns {
		dt, err := arrowType(c)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt}
		if i == 0 {
			fields[i].Metadata = arrow.NewMetadata([]string{"mkts.index"}, []string{"true"})
		}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(c Column) (arrow.DataType, error) {
	if c.Name == EpochColumn && c.Type == Int64 {
		return epochType, nil
	}
	switch c.Values.(type) {
	case []int8:
		return arrow.PrimitiveTypes.Int8, nil
	case []int16:
		return arrow.PrimitiveTypes.Int16, nil
	case []int32:
		return arrow.PrimitiveTypes.Int32, nil
	case []int64:
		return arrow.PrimitiveTypes.Int64, nil
	case []uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case []uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case []uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case []uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case []float32:
		return arrow.PrimitiveTypes.Float32, nil
	case []float64:
		return arrow.PrimitiveTypes.Float64, nil
	case []string:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("unsupported column type for column %s: %T", c.Name, c.Values)
	}
}

// ToArrow converts the batch to an Arrow record. The caller must Release it.
func (b *RecordBatch) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	schema, err := b.ArrowSchema()
	if err != nil {
		return nil, err
	}

	arrays := make([]arrow.Array, len(b.columns))
	defer func() {
		for _, arr := range arrays {
			if arr != nil {
				arr.Release()
			}
		}
	}()

	for i, c := range b.columns {
		bldr := array.NewBuilder(mem, schema.Field(i).Type)
		appendColumn(bldr, c.Values)
		arrays[i] = bldr.NewArray()
		bldr.Release()
	}
	return array.NewRecord(schema, arrays, int64(b.length)), nil
}

func appendColumn(bldr array.Builder, values interface{}) {
	switch bb := bldr.(type) {
	case *array.TimestampBuilder:
		v := values.([]int64)
		// arrow.Timestamp is an int64, reinterpret without copying
		bb.AppendValues(*(*[]arrow.Timestamp)(unsafe.Pointer(&v)), nil)
	case *array.Int8Builder:
		bb.AppendValues(values.([]int8), nil)
	case *array.Int16Builder:
		bb.AppendValues(values.([]int16), nil)
	case *array.Int32Builder:
		bb.AppendValues(values.([]int32), nil)
	case *array.Int64Builder:
		bb.AppendValues(values.([]int64), nil)
	case *array.Uint8Builder:
		bb.AppendValues(values.([]uint8), nil)
	case *array.Uint16Builder:
		bb.AppendValues(values.([]uint16), nil)
	case *array.Uint32Builder:
		bb.AppendValues(values.([]uint32), nil)
	case *array.Uint64Builder:
		bb.AppendValues(values.([]uint64), nil)
	case *array.Float32Builder:
		bb.AppendValues(values.([]float32), nil)
	case *array.Float64Builder:
		bb.AppendValues(values.([]float64), nil)
	case *array.StringBuilder:
		bb.AppendValues(values.([]string), nil)
	}
}
