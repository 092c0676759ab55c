package models

import (
	"fmt"
	"time"
)

// QueryParams describes one query against a dataset
type QueryParams struct {
	Key DatasetKey

	// Start and End bound the index (inclusive). Zero values leave the side open.
	Start time.Time
	End   time.Time

	// Limit caps the number of returned rows (0 = no limit). Rows are counted
	// back from End unless LimitFromStart is set.
	Limit          int
	LimitFromStart bool

	// Columns restricts the returned columns (index is always returned)
	Columns []string

	// Functions are server side aggregate calls, e.g. "candlecandler('1Min',Open,High,Low,Close,Volume)"
	Functions []string
}

// NewQueryParams returns params for the given symbols, timeframe and attribute group.
func NewQueryParams(symbols []string, timeframe, attributeGroup string) (*QueryParams, error) {
	key, err := NewDatasetKey(symbols, timeframe, attributeGroup)
	if err != nil {
		return nil, err
	}
	return &QueryParams{Key: key}, nil
}

// Validate checks the params before a request is built.
func (p *QueryParams) Validate() error {
	if p.Key.IsZero() {
		return fmt.Errorf("query params: dataset key is required")
	}
	if p.Limit < 0 {
		return fmt.Errorf("query params: negative limit %d", p.Limit)
	}
	if !p.Start.IsZero() && !p.End.IsZero() && p.End.Before(p.Start) {
		return fmt.Errorf("query params: end %s is before start %s",
			p.End.Format(time.RFC3339Nano), p.Start.Format(time.RFC3339Nano))
	}
	return nil
}
