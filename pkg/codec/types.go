// Package codec implements the column wire format used by the MarketStore
// DataService RPC: NPY style structural headers, fixed-width little-endian
// column buffers and typed record batches built from them.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the element kind of a column
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt          // signed two's-complement integer
	KindUint         // unsigned integer
	KindFloat        // IEEE-754 float
	KindString       // fixed-width UTF-32LE string
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// utf32Width is the number of bytes per character in a <Un column.
const utf32Width = 4

// TypeTag identifies the element kind and byte width of a column.
// For KindString, Width is the byte width of one element (4 bytes per character).
type TypeTag struct {
	Kind  Kind
	Width int
}

// Common tags
var (
	Int8    = TypeTag{KindInt, 1}
	Int16   = TypeTag{KindInt, 2}
	Int32   = TypeTag{KindInt, 4}
	Int64   = TypeTag{KindInt, 8}
	Uint8   = TypeTag{KindUint, 1}
	Uint16  = TypeTag{KindUint, 2}
	Uint32  = TypeTag{KindUint, 4}
	Uint64  = TypeTag{KindUint, 8}
	Float32 = TypeTag{KindFloat, 4}
	Float64 = TypeTag{KindFloat, 8}
)

// MaxStringChars bounds the character capacity of a decoded string tag.
const MaxStringChars = 1 << 20

// canonicalCount reports whether s is a positive decimal with no sign or leading zero.
func canonicalCount(s string) bool {
	if s == "" || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String returns a tag holding n characters.
func String(n int) TypeTag {
	return TypeTag{Kind: KindString, Width: n * utf32Width}
}

// numericCodes is the closed table of supported numeric tags and their short codes.
var numericCodes = map[TypeTag]string{
	Int8:    "i1",
	Int16:   "i2",
	Int32:   "i4",
	Int64:   "i8",
	Uint8:   "u1",
	Uint16:  "u2",
	Uint32:  "u4",
	Uint64:  "u8",
	Float32: "f4",
	Float64: "f8",
}

var codeTags = func() map[string]TypeTag {
	m := make(map[string]TypeTag, len(numericCodes))
	for tag, code := range numericCodes {
		m[code] = tag
	}
	return m
}()

// Supported reports whether the tag is in the type table.
func (t TypeTag) Supported() bool {
	if t.Kind == KindString {
		return t.Width > 0 && t.Width%utf32Width == 0
	}
	_, ok := numericCodes[t]
	return ok
}

// Chars returns the character capacity of a string tag.
func (t TypeTag) Chars() int {
	if t.Kind != KindString {
		return 0
	}
	return t.Width / utf32Width
}

// Code returns the short type code without byte order prefix ("i8", "U16"),
// as carried in the msgpack "types" field.
func (t TypeTag) Code() (string, error) {
	if !t.Supported() {
		return "", &UnsupportedTypeError{Tag: t}
	}
	if t.Kind == KindString {
		return "U" + strconv.Itoa(t.Chars()), nil
	}
	return numericCodes[t], nil
}

// String implements fmt.Stringer using the wire form when available.
func (t TypeTag) String() string {
	if s, err := TagToWire(t); err == nil {
		return s
	}
	return fmt.Sprintf("%s%d", t.Kind, t.Width*8)
}

// TagToWire maps a tag to its canonical wire type string ("<i8", "|u1", "<U16").
func TagToWire(t TypeTag) (string, error) {
	code, err := t.Code()
	if err != nil {
		return "", err
	}
	// single byte elements have no byte order
	if t.Width == 1 {
		return "|" + code, nil
	}
	return "<" + code, nil
}

// WireToTag parses a wire type string. Both prefixed ("<i8", "|i1") and bare
// ("i8") forms are accepted; big-endian or unknown strings are rejected.
func WireToTag(s string) (TypeTag, error) {
	code := s
	if len(code) > 0 {
		switch code[0] {
		case '<', '|':
			code = code[1:]
		case '>', '=', '!':
			return TypeTag{}, malformed(0, "unsupported byte order in type %q", s)
		}
	}

	if tag, ok := codeTags[code]; ok {
		// '|' is only meaningful for single byte elements
		if s[0] == '|' && tag.Width != 1 {
			return TypeTag{}, malformed(0, "unrecognized type string %q", s)
		}
		return tag, nil
	}

	if strings.HasPrefix(code, "U") && s[0] != '|' && canonicalCount(code[1:]) {
		n, err := strconv.Atoi(code[1:])
		if err == nil && n <= MaxStringChars {
			return String(n), nil
		}
	}
	return TypeTag{}, malformed(0, "unrecognized type string %q", s)
}
