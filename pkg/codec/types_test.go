package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagToWire(t *testing.T) {
	tests := []struct {
		tag  TypeTag
		want string
	}{
		{Int8, "|i1"},
		{Int16, "<i2"},
		{Int32, "<i4"},
		{Int64, "<i8"},
		{Uint8, "|u1"},
		{Uint16, "<u2"},
		{Uint32, "<u4"},
		{Uint64, "<u8"},
		{Float32, "<f4"},
		{Float64, "<f8"},
		{String(16), "<U16"},
		{String(1), "<U1"},
	}
	for _, tt := range tests {
		got, err := TagToWire(tt.tag)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		// bijection
		back, err := WireToTag(got)
		require.NoError(t, err)
		assert.Equal(t, tt.tag, back)
	}
}

func TestTagToWire_Unsupported(t *testing.T) {
	for _, tag := range []TypeTag{
		{},
		{KindInt, 3},
		{KindFloat, 2},
		{KindUint, 16},
		{KindString, 0},
		{KindString, 6},
		{Kind(42), 8},
	} {
		_, err := TagToWire(tag)
		assert.ErrorIs(t, err, ErrUnsupportedType, "tag %+v", tag)

		var ute *UnsupportedTypeError
		require.True(t, errors.As(err, &ute))
		assert.Equal(t, tag, ute.Tag)
	}
}

func TestWireToTag(t *testing.T) {
	tests := []struct {
		in   string
		want TypeTag
	}{
		{"<i8", Int64},
		{"i8", Int64},
		{"<f4", Float32},
		{"f8", Float64},
		{"|i1", Int8},
		{"<i1", Int8},
		{"i1", Int8},
		{"|u1", Uint8},
		{"U32", String(32)},
		{"<U3", String(3)},
	}
	for _, tt := range tests {
		got, err := WireToTag(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWireToTag_Malformed(t *testing.T) {
	for _, in := range []string{"", "<", ">i8", "=f4", "!i4", "|i8", "<i3", "<c16", "U", "<U0", "<U-1", "|U4", "int64", "<U+5", "<U05", "U007", "<U 5", "<U5 ", "<U1048577", "<U99999999999999999999"} {
		_, err := WireToTag(in)
		assert.ErrorIs(t, err, ErrMalformedHeader, "input %q", in)
	}
}

func TestTypeTagCode(t *testing.T) {
	code, err := Int64.Code()
	require.NoError(t, err)
	assert.Equal(t, "i8", code)

	code, err = String(16).Code()
	require.NoError(t, err)
	assert.Equal(t, "U16", code)

	_, err = TypeTag{KindFloat, 2}.Code()
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestTypeTagString(t *testing.T) {
	assert.Equal(t, "<i8", Int64.String())
	assert.Equal(t, "|u1", Uint8.String())
	assert.Equal(t, "float16", TypeTag{KindFloat, 2}.String())
	assert.Equal(t, 16, String(16).Chars())
	assert.Equal(t, 0, Int64.Chars())
}
