package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		tag    TypeTag
		values interface{}
	}{
		{"int8", Int8, []int8{math.MinInt8, -1, 0, 1, math.MaxInt8}},
		{"int16", Int16, []int16{math.MinInt16, -2, 0, 300, math.MaxInt16}},
		{"int32", Int32, []int32{math.MinInt32, -1, 0, 1 << 20, math.MaxInt32}},
		{"int64", Int64, []int64{math.MinInt64, -1, 0, 2000000000, math.MaxInt64}},
		{"uint8", Uint8, []uint8{0, 1, 255}},
		{"uint16", Uint16, []uint16{0, 1, math.MaxUint16}},
		{"uint32", Uint32, []uint32{0, 1, math.MaxUint32}},
		{"uint64", Uint64, []uint64{0, 1, math.MaxUint64}},
		{"float32", Float32, []float32{152.37, -0.0, float32(math.Inf(1)), math.SmallestNonzeroFloat32, math.MaxFloat32}},
		{"float64", Float64, []float64{152.34, -1e-300, math.Inf(-1), math.MaxFloat64}},
		{"string", String(8), []string{"", "TSLA", "12345678", "größe", "日本"}},
		{"empty int64", Int64, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Pack(tt.values, tt.tag)
			require.NoError(t, err)
			n := valuesLen(tt.values)
			assert.Len(t, buf, n*tt.tag.Width)

			got, err := Unpack(buf, tt.tag, n)
			require.NoError(t, err)
			assert.Equal(t, tt.values, got)
		})
	}
}

func TestPackFloatBitExact(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000001)
	buf, err := Pack([]float64{nan, math.Copysign(0, -1)}, Float64)
	require.NoError(t, err)

	got, err := Unpack(buf, Float64, 2)
	require.NoError(t, err)
	f := got.([]float64)
	assert.Equal(t, uint64(0x7ff8000000000001), math.Float64bits(f[0]))
	assert.Equal(t, uint64(0x8000000000000000), math.Float64bits(f[1]))
}

func TestPackLittleEndian(t *testing.T) {
	buf, err := Pack([]int32{1, -2}, Int32)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff}, buf)

	buf, err = Pack([]string{"AB"}, String(3))
	require.NoError(t, err)
	assert.Equal(t, []byte{'A', 0, 0, 0, 'B', 0, 0, 0, 0, 0, 0, 0}, buf)
}

// Epoch and Open columns of a one-minute bar
func TestPackScenarioEpochOpen(t *testing.T) {
	epochs := []int64{2000000000, 2500000000}
	opens := []float32{152.37, 152.34}

	eb, err := Pack(epochs, Int64)
	require.NoError(t, err)
	ob, err := Pack(opens, Float32)
	require.NoError(t, err)

	gotEpochs, err := Unpack(eb, Int64, 2)
	require.NoError(t, err)
	gotOpens, err := Unpack(ob, Float32, 2)
	require.NoError(t, err)

	assert.Equal(t, epochs, gotEpochs)
	assert.Equal(t, opens, gotOpens)
}

func TestPack_Unsupported(t *testing.T) {
	_, err := Pack([]int64{1}, TypeTag{KindInt, 3})
	assert.ErrorIs(t, err, ErrUnsupportedType)

	// slice type must match the tag exactly
	_, err = Pack([]int32{1}, Int64)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Pack([]int{1}, Int64)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Pack(nil, Int64)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPack_StringOverflow(t *testing.T) {
	_, err := Pack([]string{"AAPL", "TOOLONG"}, String(4))
	require.ErrorIs(t, err, ErrStringOverflow)

	var soe *StringOverflowError
	require.ErrorAs(t, err, &soe)
	assert.Equal(t, 1, soe.Index)
	assert.Equal(t, 7, soe.Chars)
	assert.Equal(t, 4, soe.Max)
}

func TestPackTruncating(t *testing.T) {
	buf, cut, err := PackTruncating([]string{"AAPL", "TOOLONG", "X", "ÄÖÜßXYZ"}, String(4))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, cut)

	got, err := Unpack(buf, String(4), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "TOOL", "X", "ÄÖÜß"}, got)
}

func TestUnpack_Truncated(t *testing.T) {
	buf, err := Pack([]int64{1, 2, 3}, Int64)
	require.NoError(t, err)

	_, err = Unpack(buf[:23], Int64, 3)
	require.ErrorIs(t, err, ErrTruncatedBuffer)

	var tbe *TruncatedBufferError
	require.ErrorAs(t, err, &tbe)
	assert.Equal(t, 24, tbe.Need)
	assert.Equal(t, 23, tbe.Have)

	_, err = Unpack(nil, Float32, 1)
	assert.ErrorIs(t, err, ErrTruncatedBuffer)
}

func TestUnpack_HugeCount(t *testing.T) {
	tests := []struct {
		name  string
		tag   TypeTag
		count int
		need  int
	}{
		{name: "count times width overflows", tag: Int64, count: 1 << 61, need: math.MaxInt},
		{name: "max count", tag: String(4), count: math.MaxInt, need: math.MaxInt},
		{name: "large but representable", tag: Int32, count: 1 << 40, need: 1 << 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(make([]byte, 8), tt.tag, tt.count)
			require.ErrorIs(t, err, ErrTruncatedBuffer)
			var tbe *TruncatedBufferError
			require.ErrorAs(t, err, &tbe)
			assert.Equal(t, tt.need, tbe.Need)
			assert.Equal(t, 8, tbe.Have)
		})
	}
}

func TestUnpack_ExtraBytesIgnored(t *testing.T) {
	buf, err := Pack([]int32{7, 8, 9}, Int32)
	require.NoError(t, err)

	got, err := Unpack(buf, Int32, 2)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8}, got)
}

func TestUnpack_BadArgs(t *testing.T) {
	_, err := Unpack([]byte{0}, TypeTag{KindFloat, 1}, 1)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Unpack(nil, Int64, -1)
	assert.Error(t, err)

	got, err := Unpack(nil, Int64, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{}, got)
}

func TestUnpackStrings_InvalidCodePoint(t *testing.T) {
	buf := []byte{0x00, 0xd8, 0x00, 0x00, 'a', 0, 0, 0}
	got, err := Unpack(buf, String(2), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"\uFFFDa"}, got)
}
