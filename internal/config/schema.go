package config

import (
	"fmt"
	"strings"

	"github.com/basekick-labs/mkts/pkg/codec"
)

// ParseSchema parses a column layout.
// Format: "Epoch:i8,Open:f4,Close:f4,Note:U16"
// Types are the short wire codes; the "<"/"|" prefixed forms are accepted too.
// Counts of the returned specs are zero.
func ParseSchema(schema string) ([]codec.ColumnSpec, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil, fmt.Errorf("empty schema")
	}

	seen := make(map[string]bool)
	parts := strings.Split(schema, ",")
	specs := make([]codec.ColumnSpec, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid column format: %s (expected 'name:type')", part)
		}

		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil, fmt.Errorf("empty column name in: %s", part)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %s", name)
		}
		seen[name] = true

		tag, err := codec.WireToTag(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		specs = append(specs, codec.ColumnSpec{Name: name, Type: tag})
	}
	return specs, nil
}
