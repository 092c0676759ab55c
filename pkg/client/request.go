package client

import (
	"fmt"

	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
)

// BuildQueryRequest converts query params into the wire request object.
// Time bounds are split into epoch seconds and nanoseconds.
func BuildQueryRequest(p *models.QueryParams) (QueryRequest, error) {
	if err := p.Validate(); err != nil {
		return QueryRequest{}, err
	}
	req := QueryRequest{
		Destination: p.Key.String(),
		Columns:     p.Columns,
		Functions:   p.Functions,
	}
	if !p.Start.IsZero() {
		sec, nanos := p.Start.Unix(), int64(p.Start.Nanosecond())
		req.EpochStart = &sec
		if nanos != 0 {
			req.EpochStartNanos = &nanos
		}
	}
	if !p.End.IsZero() {
		sec, nanos := p.End.Unix(), int64(p.End.Nanosecond())
		req.EpochEnd = &sec
		if nanos != 0 {
			req.EpochEndNanos = &nanos
		}
	}
	if p.Limit > 0 {
		limit := p.Limit
		req.LimitRecordCount = &limit
		fromStart := p.LimitFromStart
		req.LimitFromStart = &fromStart
	}
	return req, nil
}

// BuildMultiQueryRequest builds the params object for one or more queries.
func BuildMultiQueryRequest(params ...*models.QueryParams) (*MultiQueryRequest, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("at least one query is required")
	}
	mqr := &MultiQueryRequest{Requests: make([]QueryRequest, 0, len(params))}
	for i, p := range params {
		req, err := BuildQueryRequest(p)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		mqr.Requests = append(mqr.Requests, req)
	}
	return mqr, nil
}

// WriteOptions control how batches are packed for writing.
type WriteOptions struct {
	IsVariableLength bool
	// TruncateStrings cuts over-length strings instead of failing the write
	TruncateStrings bool
}

// BuildWriteRequest packs one or more batches into a single multiplexed write
// request. Batches are packed in key order of keys; all must share one layout.
// The second return value lists truncated string cells per dataset and column.
func BuildWriteRequest(keys []models.DatasetKey, batches map[models.DatasetKey]*codec.RecordBatch, opts WriteOptions) (*MultiWriteRequest, map[models.DatasetKey]map[string][]int, error) {
	if len(keys) == 0 {
		return nil, nil, fmt.Errorf("at least one dataset is required")
	}
	var (
		md   *MultiDataset
		lost map[models.DatasetKey]map[string][]int
	)
	for _, key := range keys {
		if len(key.Symbols()) != 1 {
			return nil, nil, fmt.Errorf("write key %s must name exactly one symbol", key)
		}
		batch, ok := batches[key]
		if !ok || batch == nil {
			return nil, nil, fmt.Errorf("no batch for %s", key)
		}
		if idx, ok := batch.Index(); !ok || idx.Name != codec.EpochColumn || idx.Type != codec.Int64 {
			return nil, nil, fmt.Errorf("batch for %s must start with an int64 %s column", key, codec.EpochColumn)
		}
		one, cut, err := NewMultiDataset(batch, key.WireString(), opts.TruncateStrings)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %s: %w", key, err)
		}
		if len(cut) > 0 {
			if lost == nil {
				lost = make(map[models.DatasetKey]map[string][]int)
			}
			lost[key] = cut
		}
		if md == nil {
			md = one
			continue
		}
		if err := md.Append(one, key.WireString()); err != nil {
			return nil, nil, fmt.Errorf("dataset %s: %w", key, err)
		}
	}
	return &MultiWriteRequest{
		Requests: []WriteRequest{{Data: md, IsVariableLength: opts.IsVariableLength}},
	}, lost, nil
}

// BuildCreateRequest builds the params of DataService.Create from a column layout.
// The layout must start with the int64 Epoch column.
func BuildCreateRequest(key models.DatasetKey, specs []codec.ColumnSpec, isVariableLength bool) (*MultiCreateRequest, error) {
	if len(specs) == 0 || specs[0].Name != codec.EpochColumn || specs[0].Type != codec.Int64 {
		return nil, fmt.Errorf("layout for %s must start with an int64 %s column", key, codec.EpochColumn)
	}
	req := CreateRequest{Key: key.WireString(), IsVariableLength: isVariableLength}
	for _, s := range specs {
		code, err := s.Type.Code()
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", s.Name, err)
		}
		req.ColumnNames = append(req.ColumnNames, s.Name)
		req.ColumnTypes = append(req.ColumnTypes, code)
	}
	return &MultiCreateRequest{Requests: []CreateRequest{req}}, nil
}
