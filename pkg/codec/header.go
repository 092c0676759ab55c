package codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Header framing follows the NPY format: magic, major/minor version, a little-endian
// header length (uint16 for v1, uint32 for v2+) and a Python literal dict padded
// with spaces to a 64 byte boundary and terminated by a newline.
var npyMagic = []byte("\x93NUMPY")

const (
	headerAlign = 64
	maxV1Header = 1<<16 - 1
	descrKey    = "descr"
	shapeKey    = "shape"
	fortranKey  = "fortran_order"
)

// DeriveHeader builds the structural header for a batch.
func DeriveHeader(batch *RecordBatch) ([]byte, error) {
	return DeriveHeaderSpecs(batch.Specs(), batch.Len())
}

// DeriveHeaderSpecs builds a header for the given column layout and row count.
func DeriveHeaderSpecs(specs []ColumnSpec, rows int) ([]byte, error) {
	var dict strings.Builder
	dict.WriteString("{'descr': [")
	for i, s := range specs {
		if s.Count != rows {
			return nil, fmt.Errorf("%w: column %s declares %d elements, batch has %d rows",
				ErrInvalidBatch, s.Name, s.Count, rows)
		}
		wire, err := TagToWire(s.Type)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			dict.WriteString(", ")
		}
		fmt.Fprintf(&dict, "(%s, %s)", pyQuote(s.Name), pyQuote(wire))
	}
	fmt.Fprintf(&dict, "], 'fortran_order': False, 'shape': (%d,), }", rows)

	major, lenSize := byte(1), 2
	preamble := len(npyMagic) + 2 + lenSize
	total := padTo(preamble+dict.Len()+1, headerAlign)
	if total-preamble > maxV1Header {
		major, lenSize = 2, 4
		preamble = len(npyMagic) + 2 + lenSize
		total = padTo(preamble+dict.Len()+1, headerAlign)
	}
	hlen := total - preamble

	out := make([]byte, 0, total)
	out = append(out, npyMagic...)
	out = append(out, major, 0)
	if lenSize == 2 {
		out = le.AppendUint16(out, uint16(hlen))
	} else {
		out = le.AppendUint32(out, uint32(hlen))
	}
	out = append(out, dict.String()...)
	for len(out) < total-1 {
		out = append(out, ' ')
	}
	return append(out, '\n'), nil
}

func padTo(n, align int) int {
	if r := n % align; r != 0 {
		return n + align - r
	}
	return n
}

// ParseHeader locates the descriptor dict inside b and returns its column specs.
// When the NPY magic is present the declared header length bounds the dict;
// otherwise the dict enclosing the first 'descr' key is used. Surrounding bytes
// are ignored.
func ParseHeader(b []byte) ([]ColumnSpec, error) {
	section, base, err := locateDescriptor(b)
	if err != nil {
		return nil, err
	}
	p := &literalParser{src: section, base: base}
	p.skipSpace()
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	dict, ok := val.(map[string]interface{})
	if !ok {
		return nil, malformed(base, "descriptor is not a dict")
	}
	return specsFromDict(dict, base)
}

func locateDescriptor(b []byte) ([]byte, int, error) {
	if i := bytes.Index(b, npyMagic); i >= 0 {
		off := i + len(npyMagic)
		if len(b) < off+2 {
			return nil, off, malformed(off, "missing header version")
		}
		major := b[off]
		off += 2
		var hlen int
		switch major {
		case 1:
			if len(b) < off+2 {
				return nil, off, malformed(off, "missing header length")
			}
			hlen = int(le.Uint16(b[off:]))
			off += 2
		case 2, 3:
			if len(b) < off+4 {
				return nil, off, malformed(off, "missing header length")
			}
			hlen = int(le.Uint32(b[off:]))
			off += 4
		default:
			return nil, off, malformed(off-2, "unsupported header version %d", major)
		}
		if len(b) < off+hlen {
			return nil, off, malformed(off, "header declares %d bytes, %d available", hlen, len(b)-off)
		}
		return b[off : off+hlen], off, nil
	}

	marker := bytes.Index(b, []byte(descrKey))
	if marker < 0 {
		return nil, 0, malformed(0, "descriptor section not found")
	}
	start := bytes.LastIndexByte(b[:marker], '{')
	if start < 0 {
		return nil, marker, malformed(marker, "descriptor dict opening brace not found")
	}
	return b[start:], start, nil
}

func specsFromDict(dict map[string]interface{}, base int) ([]ColumnSpec, error) {
	rawDescr, ok := dict[descrKey]
	if !ok {
		return nil, malformed(base, "missing %q", descrKey)
	}
	rawShape, ok := dict[shapeKey]
	if !ok {
		return nil, malformed(base, "missing %q", shapeKey)
	}
	if fo, ok := dict[fortranKey]; ok && fo == true {
		return nil, malformed(base, "fortran ordered data is not supported")
	}

	shape, ok := rawShape.(pyTuple)
	if !ok || len(shape) != 1 {
		return nil, malformed(base, "shape must be a 1-tuple, got %v", rawShape)
	}
	rows, ok := shape[0].(int64)
	if !ok || rows < 0 {
		return nil, malformed(base, "invalid row count %v", shape[0])
	}

	fields, ok := rawDescr.([]interface{})
	if !ok {
		return nil, malformed(base, "descr is not a field list")
	}
	specs := make([]ColumnSpec, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		field, ok := f.(pyTuple)
		if !ok || len(field) < 2 {
			return nil, malformed(base, "descr entry %d is not a (name, type) tuple", i)
		}
		if len(field) > 2 {
			return nil, malformed(base, "descr entry %d: sub-array fields are not supported", i)
		}
		name, ok := field[0].(string)
		if !ok || name == "" {
			return nil, malformed(base, "descr entry %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return nil, malformed(base, "duplicate field %s", name)
		}
		seen[name] = struct{}{}
		wire, ok := field[1].(string)
		if !ok {
			return nil, malformed(base, "field %s type is not a string", name)
		}
		tag, err := WireToTag(wire)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ColumnSpec{Name: name, Type: tag, Count: int(rows)})
	}
	return specs, nil
}

// pyTuple distinguishes tuples from lists in parsed literals.
type pyTuple []interface{}

// literalParser parses the subset of Python literals used in NPY headers:
// dicts with string keys, lists, tuples, strings, integers, True, False and None.
type literalParser struct {
	src  []byte
	pos  int
	base int
}

func (p *literalParser) errorf(format string, args ...interface{}) error {
	return malformed(p.base+p.pos, format, args...)
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) parseValue() (interface{}, error) {
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of header")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.parseDict()
	case c == '[':
		items, err := p.parseSeq('[', ']')
		return items, err
	case c == '(':
		items, err := p.parseSeq('(', ')')
		return pyTuple(items), err
	case c == '\'' || c == '"':
		return p.parseString()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseInt()
	default:
		return p.parseIdent()
	}
}

func (p *literalParser) parseDict() (interface{}, error) {
	p.pos++ // '{'
	out := make(map[string]interface{})
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated dict")
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return out, nil
		}
		if c := p.src[p.pos]; c != '\'' && c != '"' {
			return nil, p.errorf("dict key must be a string")
		}
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out[key] = val
		if err := p.endItem('}'); err != nil {
			return nil, err
		}
	}
}

func (p *literalParser) parseSeq(open, close byte) ([]interface{}, error) {
	p.pos++ // open
	items := []interface{}{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.errorf("unterminated %c", open)
		}
		if p.src[p.pos] == close {
			p.pos++
			return items, nil
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, val)
		if err := p.endItem(close); err != nil {
			return nil, err
		}
	}
}

// endItem consumes the separator after a container item.
func (p *literalParser) endItem(close byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return p.errorf("unexpected end of header")
	}
	switch p.src[p.pos] {
	case ',':
		p.pos++
		return nil
	case close:
		return nil
	default:
		return p.errorf("expected ',' or %q, got %q", close, p.src[p.pos])
	}
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return sb.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			e := p.src[p.pos]
			p.pos++
			switch e {
			case '\\', '\'', '"':
				sb.WriteByte(e)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				return "", p.errorf("unsupported escape \\%c", e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) parseInt() (interface{}, error) {
	start := p.pos
	if p.src[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	// numpy may write Python 2 long suffixes
	text := string(p.src[start:p.pos])
	if p.pos < len(p.src) && p.src[p.pos] == 'L' {
		p.pos++
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, malformed(p.base+start, "invalid integer %q", text)
	}
	return n, nil
}

func (p *literalParser) parseIdent() (interface{}, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
			break
		}
		p.pos++
	}
	switch ident := string(p.src[start:p.pos]); ident {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	case "":
		return nil, malformed(p.base+start, "unexpected character %q", p.src[start])
	default:
		return nil, malformed(p.base+start, "unexpected identifier %q", ident)
	}
}

// pyQuote renders s as a single-quoted Python string literal.
func pyQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
