package client

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
	"golang.org/x/sync/errgroup"
)

// QueryResult holds the tables assembled from one reply entry. Err is set when
// the entry could not be decoded; Tables is nil in that case.
type QueryResult struct {
	Tables       map[models.DatasetKey]*codec.RecordBatch
	PreviousTime *time.Time
	Err          error
}

// Reply is an assembled query reply.
type Reply struct {
	Results  []QueryResult
	Version  string
	Timezone string
}

// Tables merges the tables of all successful entries. Entry errors are joined
// into the returned error; tables from other entries are still returned. A key
// reported by more than one entry keeps the first table and is an error.
func (r *Reply) Tables() (map[models.DatasetKey]*codec.RecordBatch, error) {
	out := make(map[models.DatasetKey]*codec.RecordBatch)
	from := make(map[models.DatasetKey]int)
	var errs []error
	for i, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("response %d: %w", i, res.Err))
			continue
		}
		for _, k := range sortedKeys(res.Tables) {
			if first, dup := from[k]; dup {
				errs = append(errs, fmt.Errorf("response %d: %w", i, &codec.StageError{
					Stage: "slice",
					Err:   fmt.Errorf("dataset %s already reported by response %d", k, first),
				}))
				continue
			}
			out[k] = res.Tables[k]
			from[k] = i
		}
	}
	return out, errors.Join(errs...)
}

func sortedKeys(tables map[models.DatasetKey]*codec.RecordBatch) []models.DatasetKey {
	keys := make([]models.DatasetKey, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Assemble decodes every entry of resp. reqs are the requests that produced
// resp, in order; they name the datasets of entries carrying no result, so a
// null entry fails with ErrNullResult when reqs is nil.
func Assemble(reqs []QueryRequest, resp *MultiQueryResponse) (*Reply, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil query response")
	}
	if reqs != nil && len(reqs) != len(resp.Responses) {
		return nil, fmt.Errorf("reply has %d responses for %d requests", len(resp.Responses), len(reqs))
	}
	reply := &Reply{
		Results:  make([]QueryResult, len(resp.Responses)),
		Version:  resp.Version,
		Timezone: resp.Timezone,
	}
	for i, entry := range resp.Responses {
		res := &reply.Results[i]
		if entry.PreviousTime != nil {
			t := time.Unix(*entry.PreviousTime, 0).UTC()
			res.PreviousTime = &t
		}
		if entry.Result == nil {
			if reqs == nil {
				res.Err = fmt.Errorf("%w: no request names the datasets of response %d", ErrNullResult, i)
				continue
			}
			res.Tables, res.Err = emptyTables(reqs[i].Destination)
			continue
		}
		res.Tables, res.Err = AssembleDataset(entry.Result)
	}
	return reply, nil
}

// emptyTables returns one empty table per symbol of a destination.
func emptyTables(destination string) (map[models.DatasetKey]*codec.RecordBatch, error) {
	out := make(map[models.DatasetKey]*codec.RecordBatch)
	if destination == "" {
		return out, nil
	}
	key, err := models.ParseDatasetKey(destination)
	if err != nil {
		return nil, err
	}
	for _, k := range key.Split() {
		out[k] = codec.EmptyBatch(nil)
	}
	return out, nil
}

// AssembleDataset decodes md and slices one independent table per dataset key.
func AssembleDataset(md *MultiDataset) (map[models.DatasetKey]*codec.RecordBatch, error) {
	batch, err := DecodeMultiDataset(md)
	if err != nil {
		return nil, err
	}

	type window struct {
		wire  string
		key   models.DatasetKey
		start int
		len   int
	}
	windows := make([]window, 0, len(md.StartIndex))
	for wire, start := range md.StartIndex {
		key, err := models.ParseDatasetKey(wire)
		if err != nil {
			return nil, &codec.StageError{Stage: "slice", Err: err}
		}
		length, ok := md.Lengths[wire]
		if !ok {
			return nil, &codec.StageError{Stage: "slice", Err: fmt.Errorf("no length for dataset %s", wire)}
		}
		windows = append(windows, window{wire: wire, key: key, start: start, len: length})
	}
	// start order keeps error reporting deterministic
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].start != windows[j].start {
			return windows[i].start < windows[j].start
		}
		return windows[i].wire < windows[j].wire
	})

	tables := make([]*codec.RecordBatch, len(windows))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, w := range windows {
		g.Go(func() error {
			t, err := batch.Slice(w.start, w.len)
			if err != nil {
				var rangeErr *codec.DatasetRangeError
				if errors.As(err, &rangeErr) {
					rangeErr.Key = w.key.String()
				}
				return &codec.StageError{Stage: "slice", Err: err}
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[models.DatasetKey]*codec.RecordBatch, len(windows))
	for i, w := range windows {
		if _, dup := out[w.key]; dup {
			return nil, &codec.StageError{Stage: "slice", Err: fmt.Errorf("dataset %s reported twice", w.key)}
		}
		out[w.key] = tables[i]
	}
	return out, nil
}

// DecodeMultiDataset decodes the full shared batch of md. Column layout comes from
// the NPY header when present, else from the short type codes.
func DecodeMultiDataset(md *MultiDataset) (*codec.RecordBatch, error) {
	specs, err := datasetSpecs(md)
	if err != nil {
		return nil, &codec.StageError{Stage: "header", Err: err}
	}
	if len(md.ColumnData) != len(specs) {
		return nil, &codec.StageError{Stage: "header", Err: fmt.Errorf("%w: %d column buffers for %d columns",
			codec.ErrMalformedHeader, len(md.ColumnData), len(specs))}
	}

	cols := make([]codec.Column, len(specs))
	for i, s := range specs {
		values, err := codec.Unpack(md.ColumnData[i], s.Type, s.Count)
		if err != nil {
			var truncErr *codec.TruncatedBufferError
			if errors.As(err, &truncErr) {
				truncErr.Column = s.Name
			}
			return nil, &codec.StageError{Stage: "column", Column: s.Name, Err: err}
		}
		cols[i] = codec.Column{Name: s.Name, Type: s.Type, Values: values}
	}
	batch, err := codec.NewRecordBatch(cols...)
	if err != nil {
		return nil, &codec.StageError{Stage: "column", Err: err}
	}
	return batch, nil
}

func datasetSpecs(md *MultiDataset) ([]codec.ColumnSpec, error) {
	if md.Length < 0 {
		return nil, fmt.Errorf("%w: negative payload length %d", codec.ErrMalformedHeader, md.Length)
	}
	var specs []codec.ColumnSpec
	if len(md.Header) > 0 {
		parsed, err := codec.ParseHeader(md.Header)
		if err != nil {
			return nil, err
		}
		specs = parsed
	} else {
		if len(md.ColumnTypes) != len(md.ColumnNames) {
			return nil, fmt.Errorf("%w: %d types for %d names",
				codec.ErrMalformedHeader, len(md.ColumnTypes), len(md.ColumnNames))
		}
		specs = make([]codec.ColumnSpec, len(md.ColumnTypes))
		for i, t := range md.ColumnTypes {
			tag, err := codec.WireToTag(t)
			if err != nil {
				return nil, err
			}
			specs[i] = codec.ColumnSpec{Name: md.ColumnNames[i], Type: tag, Count: md.Length}
		}
	}

	// header and payload are positionally correlated; names only verify
	if len(md.ColumnNames) != len(specs) {
		return nil, fmt.Errorf("%w: header has %d columns, payload names %d",
			codec.ErrMalformedHeader, len(specs), len(md.ColumnNames))
	}
	for i, s := range specs {
		if md.ColumnNames[i] != s.Name {
			return nil, fmt.Errorf("%w: column %d is %s in header, %s in payload",
				codec.ErrMalformedHeader, i, s.Name, md.ColumnNames[i])
		}
		if s.Count != md.Length {
			return nil, fmt.Errorf("%w: column %s declares %d rows, payload length is %d",
				codec.ErrMalformedHeader, s.Name, s.Count, md.Length)
		}
	}
	return specs, nil
}
