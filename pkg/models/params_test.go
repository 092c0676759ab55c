package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryParamsValidate(t *testing.T) {
	base := func() *QueryParams {
		p, err := NewQueryParams([]string{"AAPL"}, "1Min", "OHLCV")
		require.NoError(t, err)
		return p
	}
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(p *QueryParams)
		wantErr bool
	}{
		{"defaults", func(p *QueryParams) {}, false},
		{"bounded", func(p *QueryParams) { p.Start, p.End = t0, t0.Add(time.Hour) }, false},
		{"equal bounds", func(p *QueryParams) { p.Start, p.End = t0, t0 }, false},
		{"start only", func(p *QueryParams) { p.Start = t0 }, false},
		{"end before start", func(p *QueryParams) { p.Start, p.End = t0, t0.Add(-time.Second) }, true},
		{"negative limit", func(p *QueryParams) { p.Limit = -1 }, true},
		{"zero key", func(p *QueryParams) { p.Key = DatasetKey{} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewQueryParams_InvalidKey(t *testing.T) {
	_, err := NewQueryParams(nil, "1Min", "OHLCV")
	assert.Error(t, err)
	_, err = NewQueryParams([]string{"AAPL"}, "", "OHLCV")
	assert.Error(t, err)
}
