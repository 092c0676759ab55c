package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

var le = binary.LittleEndian

// Pack serializes values as len(values) fixed-width little-endian elements.
// values must be the Go slice type matching tag (e.g. []int64 for <i8, []string for <Un).
// Strings longer than the column capacity fail with StringOverflowError.
func Pack(values interface{}, tag TypeTag) ([]byte, error) {
	buf, _, err := pack(values, tag, false)
	return buf, err
}

// PackTruncating is Pack with over-length strings cut to the column capacity.
// The indices of truncated elements are returned so callers can report the data loss.
func PackTruncating(values interface{}, tag TypeTag) ([]byte, []int, error) {
	return pack(values, tag, true)
}

func pack(values interface{}, tag TypeTag, truncate bool) ([]byte, []int, error) {
	if !tag.Supported() {
		return nil, nil, &UnsupportedTypeError{Tag: tag}
	}
	if err := checkValues(values, tag); err != nil {
		return nil, nil, err
	}

	n := valuesLen(values)
	buf := make([]byte, n*tag.Width)

	switch v := values.(type) {
	case []int8:
		for i, x := range v {
			buf[i] = byte(x)
		}
	case []int16:
		for i, x := range v {
			le.PutUint16(buf[i*2:], uint16(x))
		}
	case []int32:
		for i, x := range v {
			le.PutUint32(buf[i*4:], uint32(x))
		}
	case []int64:
		for i, x := range v {
			le.PutUint64(buf[i*8:], uint64(x))
		}
	case []uint8:
		copy(buf, v)
	case []uint16:
		for i, x := range v {
			le.PutUint16(buf[i*2:], x)
		}
	case []uint32:
		for i, x := range v {
			le.PutUint32(buf[i*4:], x)
		}
	case []uint64:
		for i, x := range v {
			le.PutUint64(buf[i*8:], x)
		}
	case []float32:
		for i, x := range v {
			le.PutUint32(buf[i*4:], math.Float32bits(x))
		}
	case []float64:
		for i, x := range v {
			le.PutUint64(buf[i*8:], math.Float64bits(x))
		}
	case []string:
		return packStrings(buf, v, tag, truncate)
	}
	return buf, nil, nil
}

// packStrings writes each value as UTF-32LE code units, NUL padded on the right.
func packStrings(buf []byte, values []string, tag TypeTag, truncate bool) ([]byte, []int, error) {
	capacity := tag.Chars()
	var truncated []int
	for i, s := range values {
		chars := utf8.RuneCountInString(s)
		if chars > capacity {
			if !truncate {
				return nil, nil, &StringOverflowError{Index: i, Chars: chars, Max: capacity}
			}
			truncated = append(truncated, i)
		}
		off := i * tag.Width
		j := 0
		for _, r := range s {
			if j == capacity {
				break
			}
			le.PutUint32(buf[off+j*utf32Width:], uint32(r))
			j++
		}
	}
	return buf, truncated, nil
}

// Unpack decodes exactly count elements of tag from buf.
// The returned value is the Go slice type matching tag.
func Unpack(buf []byte, tag TypeTag, count int) (interface{}, error) {
	if !tag.Supported() {
		return nil, &UnsupportedTypeError{Tag: tag}
	}
	if count < 0 {
		return nil, fmt.Errorf("negative element count %d", count)
	}
	if count > len(buf)/tag.Width {
		need := math.MaxInt
		if count <= math.MaxInt/tag.Width {
			need = count * tag.Width
		}
		return nil, &TruncatedBufferError{Need: need, Have: len(buf)}
	}
	need := count * tag.Width
	buf = buf[:need]

	switch tag.Kind {
	case KindInt:
		switch tag.Width {
		case 1:
			out := make([]int8, count)
			for i := range out {
				out[i] = int8(buf[i])
			}
			return out, nil
		case 2:
			out := make([]int16, count)
			for i := range out {
				out[i] = int16(le.Uint16(buf[i*2:]))
			}
			return out, nil
		case 4:
			out := make([]int32, count)
			for i := range out {
				out[i] = int32(le.Uint32(buf[i*4:]))
			}
			return out, nil
		case 8:
			out := make([]int64, count)
			for i := range out {
				out[i] = int64(le.Uint64(buf[i*8:]))
			}
			return out, nil
		}
	case KindUint:
		switch tag.Width {
		case 1:
			out := make([]uint8, count)
			copy(out, buf)
			return out, nil
		case 2:
			out := make([]uint16, count)
			for i := range out {
				out[i] = le.Uint16(buf[i*2:])
			}
			return out, nil
		case 4:
			out := make([]uint32, count)
			for i := range out {
				out[i] = le.Uint32(buf[i*4:])
			}
			return out, nil
		case 8:
			out := make([]uint64, count)
			for i := range out {
				out[i] = le.Uint64(buf[i*8:])
			}
			return out, nil
		}
	case KindFloat:
		switch tag.Width {
		case 4:
			out := make([]float32, count)
			for i := range out {
				out[i] = math.Float32frombits(le.Uint32(buf[i*4:]))
			}
			return out, nil
		case 8:
			out := make([]float64, count)
			for i := range out {
				out[i] = math.Float64frombits(le.Uint64(buf[i*8:]))
			}
			return out, nil
		}
	case KindString:
		return unpackStrings(buf, tag, count), nil
	}
	return nil, &UnsupportedTypeError{Tag: tag}
}

func unpackStrings(buf []byte, tag TypeTag, count int) []string {
	out := make([]string, count)
	var sb strings.Builder
	for i := range out {
		sb.Reset()
		elem := buf[i*tag.Width : (i+1)*tag.Width]
		for j := 0; j < tag.Chars(); j++ {
			r := rune(le.Uint32(elem[j*utf32Width:]))
			if r == 0 {
				break
			}
			if !utf8.ValidRune(r) {
				r = utf8.RuneError
			}
			sb.WriteRune(r)
		}
		out[i] = sb.String()
	}
	return out
}

// checkValues verifies the Go slice type agrees with tag.
func checkValues(values interface{}, tag TypeTag) error {
	want, ok := goTypeFor(tag)
	got := fmt.Sprintf("%T", values)
	if !ok || got != want {
		return &UnsupportedTypeError{Tag: tag, GoType: got}
	}
	return nil
}

func goTypeFor(tag TypeTag) (string, bool) {
	switch tag.Kind {
	case KindInt:
		switch tag.Width {
		case 1:
			return "[]int8", true
		case 2:
			return "[]int16", true
		case 4:
			return "[]int32", true
		case 8:
			return "[]int64", true
		}
	case KindUint:
		switch tag.Width {
		case 1:
			return "[]uint8", true
		case 2:
			return "[]uint16", true
		case 4:
			return "[]uint32", true
		case 8:
			return "[]uint64", true
		}
	case KindFloat:
		switch tag.Width {
		case 4:
			return "[]float32", true
		case 8:
			return "[]float64", true
		}
	case KindString:
		return "[]string", true
	}
	return "", false
}

// valuesLen returns the length of a supported value slice, or -1.
func valuesLen(values interface{}) int {
	switch v := values.(type) {
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []string:
		return len(v)
	default:
		return -1
	}
}
