package models

import (
	"fmt"
	"strings"
)

// DefaultKeyCategory is the category suffix older servers append to dataset keys
const DefaultKeyCategory = "Symbol/Timeframe/AttributeGroup"

// DatasetKey identifies one logical table: symbols (comma separated when more
// than one), timeframe and attribute group. It is comparable and can be used as a map key.
type DatasetKey struct {
	symbols        string
	timeframe      string
	attributeGroup string
}

// NewDatasetKey builds a key for one or more symbols.
func NewDatasetKey(symbols []string, timeframe, attributeGroup string) (DatasetKey, error) {
	if len(symbols) == 0 {
		return DatasetKey{}, fmt.Errorf("dataset key requires at least one symbol")
	}
	for _, s := range symbols {
		if s == "" || strings.ContainsAny(s, ",/:") {
			return DatasetKey{}, fmt.Errorf("invalid symbol %q", s)
		}
	}
	if err := checkPart("timeframe", timeframe); err != nil {
		return DatasetKey{}, err
	}
	if err := checkPart("attribute group", attributeGroup); err != nil {
		return DatasetKey{}, err
	}
	return DatasetKey{
		symbols:        strings.Join(symbols, ","),
		timeframe:      timeframe,
		attributeGroup: attributeGroup,
	}, nil
}

// MustDatasetKey parses s and panics on error. Intended for constants and tests.
func MustDatasetKey(s string) DatasetKey {
	k, err := ParseDatasetKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func checkPart(what, v string) error {
	if v == "" || strings.ContainsAny(v, "/:") {
		return fmt.Errorf("invalid %s %q", what, v)
	}
	return nil
}

// ParseDatasetKey parses "<symbols>/<timeframe>/<attribute_group>", stripping an
// optional ":Symbol/Timeframe/AttributeGroup" category suffix.
func ParseDatasetKey(s string) (DatasetKey, error) {
	item := s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		item = s[:i]
		if cat := s[i+1:]; cat != DefaultKeyCategory {
			return DatasetKey{}, fmt.Errorf("dataset key %q: unsupported key category %q", s, cat)
		}
	}
	parts := strings.Split(item, "/")
	if len(parts) != 3 {
		return DatasetKey{}, fmt.Errorf("dataset key %q: expected <symbols>/<timeframe>/<attribute_group>", s)
	}
	k, err := NewDatasetKey(strings.Split(parts[0], ","), parts[1], parts[2])
	if err != nil {
		return DatasetKey{}, fmt.Errorf("dataset key %q: %w", s, err)
	}
	return k, nil
}

// String returns the canonical "<symbols>/<timeframe>/<attribute_group>" form.
func (k DatasetKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.symbols + "/" + k.timeframe + "/" + k.attributeGroup
}

// WireString returns the key with the category suffix, as servers report it.
func (k DatasetKey) WireString() string {
	return k.String() + ":" + DefaultKeyCategory
}

// IsZero reports whether the key is unset.
func (k DatasetKey) IsZero() bool { return k == DatasetKey{} }

// Symbols returns the symbols of the key.
func (k DatasetKey) Symbols() []string {
	if k.symbols == "" {
		return nil
	}
	return strings.Split(k.symbols, ",")
}

// Timeframe returns the timeframe, e.g. "1Min".
func (k DatasetKey) Timeframe() string { return k.timeframe }

// AttributeGroup returns the attribute group, e.g. "OHLCV".
func (k DatasetKey) AttributeGroup() string { return k.attributeGroup }

// WithSymbol returns a copy of the key with sym appended to its symbols.
func (k DatasetKey) WithSymbol(sym string) (DatasetKey, error) {
	return NewDatasetKey(append(k.Symbols(), sym), k.timeframe, k.attributeGroup)
}

// Split returns one single-symbol key per symbol.
func (k DatasetKey) Split() []DatasetKey {
	syms := k.Symbols()
	out := make([]DatasetKey, len(syms))
	for i, s := range syms {
		out[i] = DatasetKey{symbols: s, timeframe: k.timeframe, attributeGroup: k.attributeGroup}
	}
	return out
}
